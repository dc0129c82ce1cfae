package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/usecase"
)

// MockIngestor is a mock implementation of BatchIngestor.
type MockIngestor struct {
	mu         sync.Mutex
	IngestFunc func(ctx context.Context, sourceID string, records []usecase.RawRecord) error
	SourceID   string
	Records    []usecase.RawRecord
}

func (m *MockIngestor) IngestBatch(ctx context.Context, sourceID string, records []usecase.RawRecord) error {
	m.mu.Lock()
	m.SourceID = sourceID
	m.Records = append(m.Records, records...)
	m.mu.Unlock()
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, sourceID, records)
	}
	return nil
}

func TestIngestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		method         string
		contentType    string
		target         string
		body           string
		maxBatch       int64
		mockIngestErr  error
		expectedStatus int
		expectedBody   string
		expectedCount  int
	}{
		{
			name:           "Valid NDJSON",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           `{"message": "line 1"}` + "\n\n" + `{"message": "line 2"}`,
			expectedStatus: http.StatusAccepted,
			expectedCount:  2,
		},
		{
			name:           "JSON with charset",
			method:         http.MethodPost,
			contentType:    "application/json; charset=utf-8",
			body:           `{"message": "hello", "tags": ["app_log"]}`,
			expectedStatus: http.StatusAccepted,
			expectedCount:  1,
		},
		{
			name:           "Plain text lines",
			method:         http.MethodPost,
			contentType:    "text/plain",
			target:         "/ingest?tag=container_log",
			body:           "first line\r\nsecond line\n",
			expectedStatus: http.StatusAccepted,
			expectedCount:  2,
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			contentType:    "application/json",
			body:           `{}`,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedBody:   "Method Not Allowed\n",
		},
		{
			name:           "Unsupported Content-Type",
			method:         http.MethodPost,
			contentType:    "application/xml",
			body:           `<log/>`,
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedBody:   "Unsupported Media Type: application/xml\n",
		},
		{
			name:           "Bad NDJSON line",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           `{"message": "line 1"}` + "\n" + `{"message": "bad`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Empty batch",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           "\n\n",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: empty batch\n",
		},
		{
			name:           "Pipeline closed",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           "hello",
			mockIngestErr:  usecase.ErrPipelineClosed,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "Service Unavailable\n",
		},
		{
			name:           "Ingest error",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           "fail me",
			mockIngestErr:  errors.New("internal buffer error"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Internal Server Error\n",
		},
		{
			name:           "Payload Too Large",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           strings.Repeat("x", 100),
			maxBatch:       50,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   "Payload Too Large\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestor := &MockIngestor{
				IngestFunc: func(context.Context, string, []usecase.RawRecord) error {
					return tt.mockIngestErr
				},
			}
			maxBatch := tt.maxBatch
			if maxBatch == 0 {
				maxBatch = 1024
			}
			m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
			handler := NewIngestHandler(ingestor, logger, m, maxBatch, 1024)

			target := tt.target
			if target == "" {
				target = "/ingest"
			}
			req := httptest.NewRequest(tt.method, target, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tt.expectedStatus)
			}
			if tt.expectedBody != "" {
				if body := rr.Body.String(); body != tt.expectedBody {
					t.Errorf("handler returned unexpected body: got %q want %q", body, tt.expectedBody)
				}
			}
			if tt.expectedStatus == http.StatusAccepted {
				if len(ingestor.Records) != tt.expectedCount {
					t.Errorf("expected %d records, got %d", tt.expectedCount, len(ingestor.Records))
				}
				if got := testutil.ToFloat64(m.BytesTotal); got != float64(len(tt.body)) {
					t.Errorf("bytes_total = %v, want %d", got, len(tt.body))
				}
			}
		})
	}
}

func TestIngestHandler_RecordMapping(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ingestor := &MockIngestor{}
	handler := NewIngestHandler(ingestor, logger, metrics.NewPipelineMetrics(prometheus.NewRegistry()), 4096, 1024)

	body := `{"message":"disk full","tags":["app_log"],"agent":{"hostname":"web-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/ingest?tag=http", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.RemoteAddr = "10.1.2.3:4567"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %q", rr.Code, rr.Body.String())
	}
	if ingestor.SourceID != "http:10.1.2.3:4567" {
		t.Errorf("source id = %q", ingestor.SourceID)
	}
	rec := ingestor.Records[0]
	if rec.Message != "disk full" {
		t.Errorf("message = %q", rec.Message)
	}
	if rec.Fields["agent.hostname"] != "web-1" {
		t.Errorf("agent.hostname = %q", rec.Fields["agent.hostname"])
	}
	if strings.Join(rec.Tags, ",") != "app_log,http" {
		t.Errorf("tags = %v", rec.Tags)
	}
}
