package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/logflow/internal/adapter/api/handler"
	"github.com/V4T54L/logflow/internal/adapter/api/middleware"
)

// NewAdminRouter creates the admin router: health, Prometheus metrics,
// pipeline stats, the live debug tail and stream administration.
func NewAdminRouter(adminHandler *handler.AdminHandler, tail http.Handler, gatherer prometheus.Gatherer, apiKeys []string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", adminHandler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Logging(logger))
		r.Use(middleware.Auth(apiKeys, logger))

		r.Get("/stats", adminHandler.GetStats)
		r.Method(http.MethodGet, "/tail", tail)

		r.Route("/streams/{stream}", func(r chi.Router) {
			r.Get("/", adminHandler.GetStreamInfo)
			r.Get("/groups", adminHandler.GetGroupInfo)
			r.Get("/groups/{group}/pending", adminHandler.GetPendingSummary)
			r.Post("/trim", adminHandler.TrimStream)
		})
	})

	return r
}
