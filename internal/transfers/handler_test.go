package transfers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

func newRouter(f fixture) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc, authz.Middleware{Gate: f.svc.gate, Logger: logger})
	r := chi.NewRouter()
	r.Use(authz.Identity)
	r.Route("/transfers", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, actor shared.Actor, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor.ID > 0 {
		req.Header.Set(authz.HeaderActorID, fmt.Sprint(actor.ID))
		req.Header.Set(authz.HeaderActorRole, actor.Role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHandlerWorkflowOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.repo.ledger.Seed(warehouse, cement, d(5))
	h := newRouter(f)

	rec, _ := do(t, h, shared.Actor{}, http.MethodGet, "/transfers/", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := do(t, h, planner, http.MethodPost, "/transfers/",
		fmt.Sprintf(`{"originLocationId":%d,"destinationLocationId":%d,"items":[{"materialId":%d,"requestedQty":"8"}]}`, warehouse, site, cement))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(body["id"].(float64))
	itemID := int64(body["items"].([]any)[0].(map[string]any)["id"].(float64))

	rec, _ = do(t, h, planner, http.MethodPost, fmt.Sprintf("/transfers/%d/approve", id), "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = do(t, h, manager, http.MethodPost, fmt.Sprintf("/transfers/%d/approve", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(StatusApproved), body["status"])

	rec, body = do(t, h, dispatcher, http.MethodPost, fmt.Sprintf("/transfers/%d/ship", id),
		fmt.Sprintf(`{"items":[{"itemId":%d,"qty":"8"}]}`, itemID))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Equal(t, "INSUFFICIENT_STOCK", body["code"])
	extras := body["extras"].(map[string]any)
	require.Equal(t, float64(itemID), extras["itemId"])
	require.Equal(t, "5", extras["available"])
	require.Equal(t, "8", extras["requested"])

	rec, body = do(t, h, dispatcher, http.MethodPost, fmt.Sprintf("/transfers/%d/ship", id),
		fmt.Sprintf(`{"items":[{"itemId":%d,"qty":"5"}]}`, itemID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(StatusShipped), body["status"])

	rec, body = do(t, h, manager, http.MethodPost, fmt.Sprintf("/transfers/%d/cancel", id), `{"reason":"too late"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INVALID_TRANSITION", body["code"])

	rec, body = do(t, h, manager, http.MethodGet, "/transfers/in-transit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["items"], 1)

	rec, body = do(t, h, manager, http.MethodGet, fmt.Sprintf("/transfers/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["history"], 3)

	code := body["code"].(string)
	rec, body = do(t, h, manager, http.MethodGet, "/transfers/by-code/"+code, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(id), body["id"])

	rec, body = do(t, h, manager, http.MethodGet, "/transfers/?code="+code, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["items"], 1)

	rec, _ = do(t, h, manager, http.MethodGet, "/transfers/by-code/TR-1999-0404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, manager, http.MethodGet, "/transfers/999", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, h, planner, http.MethodPost, "/transfers/", `{"originLocationId":1,"destinationLocationId":1,"bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "BAD_REQUEST", body["code"])
}
