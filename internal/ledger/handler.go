package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/httpx"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Handler wires HTTP endpoints for stock balances and movements.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermStockView))
		r.Get("/balance", h.handleBalance)
		r.Get("/locations/{id}/balances", h.handleListBalances)
		r.Get("/movements", h.handleStockCard)
	})
	r.Post("/adjustments", h.handleAdjust)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	locationID, err := httpx.QueryInt64(r, "locationId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	materialID, err := httpx.QueryInt64(r, "materialId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if locationID <= 0 || materialID <= 0 {
		httpx.RespondError(w, shared.Invalid("locationId and materialId required"))
		return
	}
	qty, err := h.service.GetBalance(r.Context(), locationID, materialID)
	if err != nil {
		h.fail(w, "get balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, Balance{LocationID: locationID, MaterialID: materialID, Quantity: qty})
}

func (h *Handler) handleListBalances(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.service.ListBalances(r.Context(), id)
	if err != nil {
		h.fail(w, "list balances", err)
		return
	}
	if balances == nil {
		balances = []Balance{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": balances})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	var filter StockCardFilter
	var err error
	if filter.LocationID, err = httpx.QueryInt64(r, "locationId"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.MaterialID, err = httpx.QueryInt64(r, "materialId"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.RespondError(w, shared.Invalid("from must be YYYY-MM-DD"))
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("to must be YYYY-MM-DD"))
			return
		}
		// Set to end of day
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	entries, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.fail(w, "stock card", err)
		return
	}
	if entries == nil {
		entries = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var input AdjustInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := h.service.Adjust(r.Context(), actor, input)
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, Balance{LocationID: input.LocationID, MaterialID: input.MaterialID, Quantity: qty})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if p := httpx.ProblemFor(err); p.Status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
