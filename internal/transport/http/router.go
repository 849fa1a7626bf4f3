// Package httptransport assembles the HTTP surface: shared middleware once
// at the top, then each vertical registers its own routes and auth scopes.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"haven/internal/platform/metrics"
	"haven/internal/platform/middleware"
)

// Registrar is implemented by every vertical handler.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the service router. The /metrics and /healthz endpoints
// bypass the JSON middleware chain.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, handlers ...Registrar) http.Handler {
	root := chi.NewRouter()
	root.Handle("/metrics", promhttp.Handler())
	root.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	root.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.Latency(m))
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return root
}
