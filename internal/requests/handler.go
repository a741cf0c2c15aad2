package requests

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/httpx"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Handler wires HTTP endpoints for material requests.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler constructs the requests handler.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers material request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermRequestView, shared.PermRequestCreate, shared.PermRequestApprove))
		r.Get("/", h.list)
		r.Get("/pending", h.pending)
		r.Get("/{id}", h.get)
		r.Get("/{id}/history", h.history)
	})
	r.Post("/", h.create)
	r.Post("/{id}/items", h.addItem)
	r.Patch("/{id}/items/{itemId}", h.updateItem)
	r.Delete("/{id}/items/{itemId}", h.removeItem)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/separation/start", h.startSeparation)
	r.Post("/{id}/separation/complete", h.completeSeparation)
	r.Post("/{id}/deliver", h.deliver)
	r.Post("/{id}/cancel", h.cancel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{Status: Status(q.Get("status")), Search: q.Get("search"), Page: page, Limit: limit}
	var err error
	if filters.ContractID, err = httpx.QueryInt64(r, "contractId"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filters.RequesterID, err = httpx.QueryInt64(r, "requesterId"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list requests", err)
		return
	}
	if items == nil {
		items = []Request{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pagination})
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, pagination, err := h.service.ListPendingApproval(r.Context(), page, limit)
	if err != nil {
		h.fail(w, "list pending requests", err)
		return
	}
	if items == nil {
		items = []Request{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetDetail(r.Context(), id)
	if err != nil {
		h.fail(w, "get request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.fail(w, "get request", err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.fail(w, "request history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.fail(w, "create request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body struct {
		ItemInput
		ExpectedVersion *int64 `json:"expectedVersion"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.AddItem(r.Context(), actor, id, body.ItemInput, body.ExpectedVersion)
	h.respond(w, "add request item", req, err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, ok := h.itemPath(w, r)
	if !ok {
		return
	}
	var input ItemUpdate
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.UpdateItem(r.Context(), actor, id, itemID, input)
	h.respond(w, "update request item", req, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, ok := h.itemPath(w, r)
	if !ok {
		return
	}
	var expected *int64
	if raw := r.URL.Query().Get("expectedVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("expectedVersion must be an integer"))
			return
		}
		expected = &v
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.RemoveItem(r.Context(), actor, id, itemID, expected)
	h.respond(w, "remove request item", req, err)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var input VersionInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	req, err := h.service.Submit(r.Context(), actor, id, input)
	h.respond(w, "submit request", req, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var input QuantitiesInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	req, err := h.service.Approve(r.Context(), actor, id, input)
	h.respond(w, "approve request", req, err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var input ReasonInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	req, err := h.service.Reject(r.Context(), actor, id, input)
	h.respond(w, "reject request", req, err)
}

func (h *Handler) startSeparation(w http.ResponseWriter, r *http.Request) {
	var input VersionInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	req, err := h.service.StartSeparation(r.Context(), actor, id, input)
	h.respond(w, "start separation", req, err)
}

func (h *Handler) completeSeparation(w http.ResponseWriter, r *http.Request) {
	var input QuantitiesInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	req, err := h.service.CompleteSeparation(r.Context(), actor, id, input)
	h.respond(w, "complete separation", req, err)
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	var input VersionInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	req, err := h.service.Deliver(r.Context(), actor, id, input)
	h.respond(w, "deliver request", req, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var input ReasonInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	req, err := h.service.Cancel(r.Context(), actor, id, input)
	h.respond(w, "cancel request", req, err)
}

// command parses the path id and an optional JSON body.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, input any) (int64, shared.Actor, bool) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, shared.Actor{}, false
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, input); err != nil {
			httpx.RespondError(w, err)
			return 0, shared.Actor{}, false
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	return id, actor, true
}

func (h *Handler) itemPath(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	itemID, err := httpx.PathID(r, "itemId")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return id, itemID, true
}

func (h *Handler) respond(w http.ResponseWriter, msg string, req Request, err error) {
	if err != nil {
		h.fail(w, msg, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if p := httpx.ProblemFor(err); p.Status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
