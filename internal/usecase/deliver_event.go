package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
)

// ErrSinkExhausted is returned when every write attempt failed. The event has
// already been tagged, sent to the debug sink and counted as dropped.
var ErrSinkExhausted = errors.New("storage sink rejected event after retries")

const (
	defaultRetryCount   = 3
	defaultRetryInitial = 200 * time.Millisecond
	defaultRetryMax     = 5 * time.Second
)

// RetryPolicy bounds the sink retry loop.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  defaultRetryCount,
		InitialDelay: defaultRetryInitial,
		MaxDelay:     defaultRetryMax,
		Jitter:       true,
	}
}

// Backoff returns the delay after the given failed attempt (1-based).
// Delays double from InitialDelay and are capped at MaxDelay; jitter adds up to 25%.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter && delay >= 4 {
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

// DeliverEventUseCase writes routed events to the storage sink.
type DeliverEventUseCase struct {
	sink    domain.StorageSink
	debug   domain.DebugSink
	policy  RetryPolicy
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewDeliverEventUseCase creates a new DeliverEventUseCase.
func NewDeliverEventUseCase(sink domain.StorageSink, debug domain.DebugSink, policy RetryPolicy, m *metrics.PipelineMetrics, logger *slog.Logger) *DeliverEventUseCase {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &DeliverEventUseCase{
		sink:    sink,
		debug:   debug,
		policy:  policy,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// Deliver writes the event with bounded retries. A nil error means the sink
// acknowledged it. ErrSinkExhausted means the event was dropped here.
// A context error leaves the drop accounting to the caller.
func (uc *DeliverEventUseCase) Deliver(ctx context.Context, event *domain.LogEvent) error {
	ctx, span := uc.tracer.Start(ctx, "Deliver", trace.WithAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("stream", event.Stream),
	))
	defer span.End()

	record := event.Record()
	var lastErr error
	for attempt := 1; attempt <= uc.policy.MaxAttempts; attempt++ {
		err := uc.sink.Write(ctx, record)
		if err == nil {
			uc.metrics.SinkWrites.WithLabelValues("ok").Inc()
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return ctx.Err()
		}
		if attempt == uc.policy.MaxAttempts {
			break
		}

		uc.metrics.SinkWrites.WithLabelValues("retry").Inc()
		delay := uc.policy.Backoff(attempt)
		uc.logger.Warn("failed to write event to sink, retrying...", "attempt", attempt, "delay", delay, "event_id", event.ID, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			span.SetStatus(codes.Error, "cancelled")
			return ctx.Err()
		}
	}

	uc.metrics.SinkWrites.WithLabelValues("failed").Inc()
	uc.metrics.EventsDropped.WithLabelValues(metrics.DropSink).Inc()
	event.AddTag(domain.TagSinkFailed)
	uc.debug.Emit(event.Clone())
	uc.logger.Error("dropping event after sink retries", "attempts", uc.policy.MaxAttempts, "event_id", event.ID, "stream", event.Stream, "error", lastErr)

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "sink exhausted")
	return fmt.Errorf("%w: %w", ErrSinkExhausted, lastErr)
}
