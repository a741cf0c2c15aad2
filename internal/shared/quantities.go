package shared

import "github.com/shopspring/decimal"

// ItemQty sets a stage quantity on one aggregate item.
type ItemQty struct {
	ItemID int64           `json:"itemId" validate:"required,gt=0"`
	Qty    decimal.Decimal `json:"qty"`
}

// QuantityMap indexes a quantity list by item id. Unknown ids, duplicates and
// negative quantities are validation errors.
func QuantityMap(items []ItemQty, known func(itemID int64) bool) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal, len(items))
	for _, it := range items {
		if !known(it.ItemID) {
			return nil, Invalid("unknown item %d", it.ItemID)
		}
		if _, dup := out[it.ItemID]; dup {
			return nil, Invalid("item %d listed twice", it.ItemID)
		}
		if it.Qty.IsNegative() {
			return nil, Invalid("item %d: quantity must not be negative", it.ItemID)
		}
		out[it.ItemID] = it.Qty
	}
	return out, nil
}
