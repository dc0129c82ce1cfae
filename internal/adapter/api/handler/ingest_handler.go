package handler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/V4T54L/logflow/internal/adapter/lumberjack"
	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/usecase"
)

// BatchIngestor hands a decoded batch to the pipeline.
type BatchIngestor interface {
	IngestBatch(ctx context.Context, sourceID string, records []usecase.RawRecord) error
}

// IngestHandler accepts a batch of records over HTTP. The request is answered
// with 202 only after every record has been handed to the pipeline.
type IngestHandler struct {
	ingestor     BatchIngestor
	logger       *slog.Logger
	metrics      *metrics.PipelineMetrics
	maxBatchSize int64
	maxLineSize  int
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ingestor BatchIngestor, logger *slog.Logger, m *metrics.PipelineMetrics, maxBatchSize int64, maxLineSize int) *IngestHandler {
	return &IngestHandler{
		ingestor:     ingestor,
		logger:       logger.With("component", "ingest_handler"),
		metrics:      m,
		maxBatchSize: maxBatchSize,
		maxLineSize:  maxLineSize,
	}
}

// ServeHTTP processes POST /ingest.
//
// application/x-ndjson and application/json bodies hold one Beats-style JSON
// event per line. text/plain bodies hold one raw log line per line. The tag
// query parameter may be repeated to set initial tags on every record.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	var decode func(line []byte) (usecase.RawRecord, error)
	switch mediaType {
	case "application/json", "application/x-ndjson":
		decode = lumberjack.DecodeRecord
	case "text/plain":
		decode = func(line []byte) (usecase.RawRecord, error) {
			return usecase.RawRecord{Message: string(line)}, nil
		}
	default:
		http.Error(w, fmt.Sprintf("Unsupported Media Type: %s", mediaType), http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBatchSize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request: failed to read body", http.StatusBadRequest)
		return
	}
	h.metrics.BytesTotal.Add(float64(len(body)))

	records, err := h.decodeLines(body, decode, r.URL.Query()["tag"])
	if err != nil {
		h.logger.Warn("rejected ingest request", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(records) == 0 {
		http.Error(w, "Bad Request: empty batch", http.StatusBadRequest)
		return
	}

	sourceID := "http:" + r.RemoteAddr
	if err := h.ingestor.IngestBatch(r.Context(), sourceID, records); err != nil {
		if errors.Is(err, usecase.ErrPipelineClosed) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		if r.Context().Err() != nil {
			return
		}
		h.logger.Error("failed to ingest batch", "source_id", sourceID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *IngestHandler) decodeLines(body []byte, decode func([]byte) (usecase.RawRecord, error), tags []string) ([]usecase.RawRecord, error) {
	var records []usecase.RawRecord
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), h.maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		rec, err := decode(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				rec.Tags = append(rec.Tags, t)
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return records, nil
}
