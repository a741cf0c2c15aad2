package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
	"github.com/odyssey-erp/enterprise-stock/internal/locations"
	"github.com/odyssey-erp/enterprise-stock/internal/observability"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/httpx"
	"github.com/odyssey-erp/enterprise-stock/internal/requests"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
	"github.com/odyssey-erp/enterprise-stock/internal/transfers"
	"github.com/odyssey-erp/enterprise-stock/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	LocationsHandler *locations.Handler
	LedgerHandler    *ledger.Handler
	RequestsHandler  *requests.Handler
	TransfersHandler *transfers.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authz.Identity)
		if params.LocationsHandler != nil {
			r.Route("/locations", params.LocationsHandler.MountRoutes)
		}
		if params.LedgerHandler != nil {
			r.Route("/stock", params.LedgerHandler.MountRoutes)
		}
		if params.RequestsHandler != nil {
			r.Route("/requests", params.RequestsHandler.MountRoutes)
		}
		if params.TransfersHandler != nil {
			r.Route("/transfers", params.TransfersHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, shared.ErrNotFound)
	})

	return r
}
