package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

func TestProblemForStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("request 9: %w", shared.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"validation", shared.Invalid("qty negative"), http.StatusBadRequest, "VALIDATION"},
		{"reason", shared.ErrReasonRequired, http.StatusBadRequest, "REASON_REQUIRED"},
		{"unauthorized", shared.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
		{"transition", &shared.TransitionError{Aggregate: "request", ID: 1, From: "DELIVERED", Operation: "cancel"}, http.StatusConflict, "INVALID_TRANSITION"},
		{"concurrent", shared.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"empty", shared.ErrEmptyRequest, http.StatusUnprocessableEntity, "EMPTY_REQUEST"},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ProblemFor(tc.err)
			require.Equal(t, tc.status, p.Status)
			require.Equal(t, tc.code, p.Code)
		})
	}
}

func TestRespondErrorInsufficientStockCarriesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("deliver: %w", &shared.InsufficientStockError{
		LocationID: 3,
		MaterialID: 7,
		ItemID:     11,
		Available:  decimal.NewFromInt(2),
		Requested:  decimal.NewFromInt(5),
	})
	RespondError(rec, err)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "INSUFFICIENT_STOCK", body.Code)
	require.Equal(t, "3", body.Extras["shortfall"])
	require.EqualValues(t, 7, body.Extras["materialId"])
}

func TestInternalErrorHidesDetail(t *testing.T) {
	p := ProblemFor(errors.New("password=secret"))
	require.Empty(t, p.Detail)
}
