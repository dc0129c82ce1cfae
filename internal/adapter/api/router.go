package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/V4T54L/logflow/internal/adapter/api/handler"
	"github.com/V4T54L/logflow/internal/adapter/api/middleware"
	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/pkg/config"
)

// NewRouter creates the HTTP ingest router.
func NewRouter(cfg *config.Config, logger *slog.Logger, ingestor handler.BatchIngestor, m *metrics.PipelineMetrics) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	ingestHandler := handler.NewIngestHandler(ingestor, logger, m, cfg.MaxBatchBytes, int(cfg.MaxFrameSize))
	r.With(middleware.Auth(cfg.HTTPAPIKeys, logger)).Method(http.MethodPost, "/ingest", ingestHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
