package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/logflow/internal/adapter/api/handler"
	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/pkg/config"
	"github.com/V4T54L/logflow/internal/usecase"
)

type nopIngestor struct{ batches int }

func (n *nopIngestor) IngestBatch(context.Context, string, []usecase.RawRecord) error {
	n.batches++
	return nil
}

type fixedStats struct{}

func (fixedStats) Stats() domain.PipelineStats { return domain.PipelineStats{Submitted: 3} }

func TestRouter_IngestRequiresKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{MaxBatchBytes: 1 << 20, MaxFrameSize: 1 << 16, HTTPAPIKeys: []string{"secret"}}
	ingestor := &nopIngestor{}
	r := NewRouter(cfg, logger, ingestor, metrics.NewPipelineMetrics(prometheus.NewRegistry()))

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-API-Key", "secret")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, ingestor.batches)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewPipelineMetrics(reg)
	m.EventsReceived.Add(5)

	tail := handler.NewTailBroker(context.Background(), logger)
	r := NewAdminRouter(handler.NewAdminHandler(fixedStats{}, nil, logger), tail, reg, nil, logger)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "logflow_ingest_events_total 5")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"submitted":3`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/streams/x/trim", strings.NewReader(`{"maxlen":1}`)))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}
