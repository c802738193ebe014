package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/integrity"
	"github.com/gondolapp/gondolapp/internal/observability"
	"github.com/gondolapp/gondolapp/internal/restock"
	"github.com/gondolapp/gondolapp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	CatalogHandler    *catalog.Handler
	RestockHandler    *restock.Handler
	ExpirationHandler *expiration.Handler
	IntegrityHandler  *integrity.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the node's defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.CatalogHandler != nil {
		r.Route("/api/productos", params.CatalogHandler.MountLookup)
		r.Route("/api/products", params.CatalogHandler.MountRoutes)
	}
	if params.RestockHandler != nil {
		r.Route("/api/restock", params.RestockHandler.MountRoutes)
	}
	if params.ExpirationHandler != nil {
		r.Route("/api/expirations", params.ExpirationHandler.MountRoutes)
	}
	if params.IntegrityHandler != nil {
		r.Route("/api/admin/integrity", params.IntegrityHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
