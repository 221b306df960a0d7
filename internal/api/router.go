package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"toggle-client/internal/observability"
)

// Router mounts the feature API. metrics serves /metrics.
func Router(h *FeatureHandler, m *observability.HTTPMetrics, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(m.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Second))

	r.Get("/v1/features", h.List)
	r.Get("/v1/features/{name}", h.Evaluate)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", metrics)
	return r
}
