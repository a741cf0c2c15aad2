package locations

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/httpx"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Handler wires HTTP endpoints for stock locations.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler constructs the locations handler.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermStockView, shared.PermLocationsManage))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Post("/", h.create)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/deactivate", h.deactivate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{
		Type:   Type(q.Get("type")),
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
	if contractID, err := httpx.QueryInt64(r, "contractId"); err != nil {
		httpx.RespondError(w, err)
		return
	} else if contractID > 0 {
		filters.ContractID = &contractID
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("active must be a boolean"))
			return
		}
		filters.Active = &active
	}
	items, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.fail(w, "create location", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, "update location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.Deactivate(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "deactivate location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if p := httpx.ProblemFor(err); p.Status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
