package transfers

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

// Handler wires HTTP endpoints for stock transfers.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler constructs the transfers handler.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers stock transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermTransferView, shared.PermTransferCreate, shared.PermTransferApprove))
		r.Get("/", h.list)
		r.Get("/in-transit", h.inTransit)
		r.Get("/by-code/{code}", h.byCode)
		r.Get("/{id}", h.get)
		r.Get("/{id}/history", h.history)
	})
	r.Post("/", h.create)
	r.Post("/{id}/items", h.addItem)
	r.Delete("/{id}/items/{itemId}", h.removeItem)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/ship", h.ship)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/cancel", h.cancel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{
		Status: Status(q.Get("status")),
		Code:   q.Get("code"),
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
	var err error
	if filters.OriginLocationID, err = httpx.QueryInt64(r, "originId"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filters.DestinationLocationID, err = httpx.QueryInt64(r, "destinationId"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list transfers", err)
		return
	}
	if items == nil {
		items = []Transfer{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pagination})
}

func (h *Handler) inTransit(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if raw := r.URL.Query().Get("olderThan"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			httpx.RespondError(w, shared.Invalid("olderThan must be a positive duration such as 24h"))
			return
		}
		olderThan = d
	}
	lines, err := h.service.ListInTransit(r.Context(), olderThan)
	if err != nil {
		h.fail(w, "list in-transit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetDetail(r.Context(), id)
	if err != nil {
		h.fail(w, "get transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) byCode(w http.ResponseWriter, r *http.Request) {
	tr, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get transfer by code", err)
		return
	}
	detail, err := h.service.GetDetail(r.Context(), tr.ID)
	if err != nil {
		h.fail(w, "get transfer", err)
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
		h.fail(w, "get transfer", err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.fail(w, "transfer history", err)
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
	tr, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.fail(w, "create transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemInput
		ExpectedVersion *int64 `json:"expectedVersion"`
	}
	id, actor, ok := h.command(w, r, &body)
	if !ok {
		return
	}
	tr, err := h.service.AddItem(r.Context(), actor, id, body.ItemInput, body.ExpectedVersion)
	h.respond(w, "add transfer item", tr, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.PathID(r, "itemId")
	if err != nil {
		httpx.RespondError(w, err)
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
	tr, err := h.service.RemoveItem(r.Context(), actor, id, itemID, expected)
	h.respond(w, "remove transfer item", tr, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var input VersionInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	tr, err := h.service.Approve(r.Context(), actor, id, input)
	h.respond(w, "approve transfer", tr, err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var input ReasonInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	tr, err := h.service.Reject(r.Context(), actor, id, input)
	h.respond(w, "reject transfer", tr, err)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	var input QuantitiesInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	tr, err := h.service.Ship(r.Context(), actor, id, input)
	h.respond(w, "ship transfer", tr, err)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var input QuantitiesInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	tr, err := h.service.Receive(r.Context(), actor, id, input)
	h.respond(w, "receive transfer", tr, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var input ReasonInput
	id, actor, ok := h.command(w, r, &input)
	if !ok {
		return
	}
	tr, err := h.service.Cancel(r.Context(), actor, id, input)
	h.respond(w, "cancel transfer", tr, err)
}

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

func (h *Handler) respond(w http.ResponseWriter, msg string, tr Transfer, err error) {
	if err != nil {
		h.fail(w, msg, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if p := httpx.ProblemFor(err); p.Status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
