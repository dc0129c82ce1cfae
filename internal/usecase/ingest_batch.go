package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
)

const tracerName = "github.com/V4T54L/logflow/internal/usecase"

// RawRecord is one agent-delivered record as decoded by a listener.
type RawRecord struct {
	Message string
	Tags    []string
	Fields  map[string]string
}

// Submitter accepts events into the pipeline, blocking while it is full.
type Submitter interface {
	Submit(ctx context.Context, event *domain.LogEvent) error
}

// IngestBatchUseCase turns decoded records into events and hands them off.
type IngestBatchUseCase struct {
	pipeline Submitter
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewIngestBatchUseCase creates a new IngestBatchUseCase.
func NewIngestBatchUseCase(pipeline Submitter, m *metrics.PipelineMetrics, logger *slog.Logger) *IngestBatchUseCase {
	return &IngestBatchUseCase{
		pipeline: pipeline,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// IngestBatch submits every record of a batch in order. It returns only after
// all events are in the pipeline's ingress queues, so callers may acknowledge
// the batch on a nil error. On error, a prefix of the batch may already be
// queued; the agent will resend the whole batch.
func (uc *IngestBatchUseCase) IngestBatch(ctx context.Context, sourceID string, records []RawRecord) error {
	ctx, span := uc.tracer.Start(ctx, "IngestBatch", trace.WithAttributes(
		attribute.String("source_id", sourceID),
		attribute.Int("batch.size", len(records)),
	))
	defer span.End()

	receivedAt := uc.now().UTC()
	for i, rec := range records {
		event := domain.NewLogEvent(uuid.NewString(), sourceID, rec.Message, receivedAt)
		for k, v := range rec.Fields {
			event.SetField(k, v)
		}
		for _, tag := range rec.Tags {
			event.AddTag(tag)
		}

		if err := uc.pipeline.Submit(ctx, event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submit failed")
			uc.logger.Warn("failed to hand off batch", "source_id", sourceID, "submitted", i, "size", len(records), "error", err)
			return fmt.Errorf("submit record %d of %d: %w", i+1, len(records), err)
		}
		uc.metrics.EventsReceived.Inc()
	}

	return nil
}
