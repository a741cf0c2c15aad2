package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// ErrBadRequest marks undecodable request input.
var ErrBadRequest = errors.New("bad request")

// ErrUnauthenticated marks a request without an actor identity.
var ErrUnauthenticated = errors.New("unauthenticated")

type mapping struct {
	target error
	status int
	title  string
	code   string
}

var mappings = []mapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found", "NOT_FOUND"},
	{ErrBadRequest, http.StatusBadRequest, "Bad Request", "BAD_REQUEST"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed", "VALIDATION"},
	{shared.ErrReasonRequired, http.StatusBadRequest, "Reason Required", "REASON_REQUIRED"},
	{ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated", "UNAUTHENTICATED"},
	{shared.ErrUnauthorized, http.StatusForbidden, "Forbidden", "UNAUTHORIZED"},
	{shared.ErrApprovalLimitExceeded, http.StatusForbidden, "Approval Limit Exceeded", "APPROVAL_LIMIT_EXCEEDED"},
	{shared.ErrInvalidTransition, http.StatusConflict, "Invalid Transition", "INVALID_TRANSITION"},
	{shared.ErrInvalidState, http.StatusConflict, "Invalid State", "INVALID_STATE"},
	{shared.ErrConcurrentModification, http.StatusConflict, "Concurrent Modification", "CONCURRENT_MODIFICATION"},
	{shared.ErrEmptyRequest, http.StatusUnprocessableEntity, "Empty Request", "EMPTY_REQUEST"},
	{shared.ErrSameLocation, http.StatusUnprocessableEntity, "Same Location", "SAME_LOCATION"},
	{shared.ErrQuantityExceedsRequested, http.StatusUnprocessableEntity, "Quantity Exceeds Requested", "QUANTITY_EXCEEDS_REQUESTED"},
	{shared.ErrQuantityExceedsApproved, http.StatusUnprocessableEntity, "Quantity Exceeds Approved", "QUANTITY_EXCEEDS_APPROVED"},
	{shared.ErrQuantityExceedsShipped, http.StatusUnprocessableEntity, "Quantity Exceeds Shipped", "QUANTITY_EXCEEDS_SHIPPED"},
	{shared.ErrInsufficientStock, http.StatusUnprocessableEntity, "Insufficient Stock", "INSUFFICIENT_STOCK"},
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	WriteProblem(w, ProblemFor(err))
}

// ProblemFor builds the problem document for err.
func ProblemFor(err error) ProblemDetail {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
			Code:   "VALIDATION",
			Extras: map[string]any{"fields": fields},
		}
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return ProblemDetail{
				Title:  m.title,
				Status: m.status,
				Detail: err.Error(),
				Code:   m.code,
				Extras: extrasFor(err),
			}
		}
	}
	return ProblemDetail{
		Title:  "Internal Error",
		Status: http.StatusInternalServerError,
		Code:   "INTERNAL",
	}
}

func extrasFor(err error) map[string]any {
	var stockErr *shared.InsufficientStockError
	if errors.As(err, &stockErr) {
		return map[string]any{
			"locationId": stockErr.LocationID,
			"materialId": stockErr.MaterialID,
			"itemId":     stockErr.ItemID,
			"available":  stockErr.Available.String(),
			"requested":  stockErr.Requested.String(),
			"shortfall":  stockErr.Shortfall().String(),
		}
	}
	var qtyErr *shared.QuantityError
	if errors.As(err, &qtyErr) {
		return map[string]any{
			"itemId":    qtyErr.ItemID,
			"requested": qtyErr.Requested.String(),
			"limit":     qtyErr.Limit.String(),
		}
	}
	var limitErr *shared.ApprovalLimitError
	if errors.As(err, &limitErr) {
		return map[string]any{
			"role":    limitErr.Role,
			"ceiling": limitErr.Ceiling.String(),
			"amount":  limitErr.Amount.String(),
		}
	}
	var transErr *shared.TransitionError
	if errors.As(err, &transErr) {
		return map[string]any{
			"aggregate": transErr.Aggregate,
			"id":        transErr.ID,
			"from":      transErr.From,
			"operation": transErr.Operation,
		}
	}
	return nil
}
