package shared

// Enterprise stock permissions checked through the authorization gate.
const (
	// Material request permissions
	PermRequestCreate   = "requests.create"
	PermRequestApprove  = "requests.approve"
	PermRequestSeparate = "requests.separate"
	PermRequestDeliver  = "requests.deliver"
	PermRequestView     = "requests.view"

	// Stock transfer permissions
	PermTransferCreate  = "transfers.create"
	PermTransferApprove = "transfers.approve"
	PermTransferShip    = "transfers.ship"
	PermTransferReceive = "transfers.receive"
	PermTransferCancel  = "transfers.cancel"
	PermTransferView    = "transfers.view"

	// Stock and location permissions
	PermStockView       = "stock.view"
	PermStockAdjust     = "stock.adjust"
	PermLocationsManage = "locations.manage"
)

// RequestScopes lists all permissions related to material requests.
func RequestScopes() []string {
	return []string{
		PermRequestCreate,
		PermRequestApprove,
		PermRequestSeparate,
		PermRequestDeliver,
		PermRequestView,
	}
}

// TransferScopes lists all permissions related to stock transfers.
func TransferScopes() []string {
	return []string{
		PermTransferCreate,
		PermTransferApprove,
		PermTransferShip,
		PermTransferReceive,
		PermTransferCancel,
		PermTransferView,
	}
}

// StockScopes lists stock and location permissions.
func StockScopes() []string {
	return []string{PermStockView, PermStockAdjust, PermLocationsManage}
}

// AllEnterpriseScopes returns every permission known to the enterprise module.
func AllEnterpriseScopes() []string {
	scopes := append(RequestScopes(), TransferScopes()...)
	return append(scopes, StockScopes()...)
}
