package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/adapter/pii"
	"github.com/V4T54L/logflow/internal/domain"
)

// ErrAmbiguousTimestamp is returned for wall-clock text that does not map to
// exactly one instant in the source zone.
var ErrAmbiguousTimestamp = errors.New("timestamp does not exist in source zone")

// TimestampNormalizer converts between the source's wall-clock text and
// canonical UTC instants.
type TimestampNormalizer struct {
	Field    string
	Layout   string
	Location *time.Location
}

// Normalize parses s as a wall-clock time in the source zone. Times that do
// not exist in the zone, such as those skipped by a DST transition, and any
// text that would not format back to s are rejected.
func (n TimestampNormalizer) Normalize(s string) (time.Time, error) {
	t, err := time.ParseInLocation(n.Layout, s, n.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	// t keeps an explicit offset from s when the layout has one.
	if got := t.Format(n.Layout); got != s {
		return time.Time{}, fmt.Errorf("%w: %q resolves to %q in %s", ErrAmbiguousTimestamp, s, got, n.Location)
	}
	return t.UTC(), nil
}

// Format renders a canonical instant back in the source zone and layout.
func (n TimestampNormalizer) Format(t time.Time) string {
	return t.In(n.Location).Format(n.Layout)
}

// EnrichEventUseCase normalizes timestamps and attaches static fields.
type EnrichEventUseCase struct {
	normalizer   TimestampNormalizer
	staticFields map[string]string
	redactor     *pii.Redactor
	metrics      *metrics.PipelineMetrics
	logger       *slog.Logger
}

// NewEnrichEventUseCase creates a new EnrichEventUseCase. redactor may be nil.
func NewEnrichEventUseCase(normalizer TimestampNormalizer, staticFields map[string]string, redactor *pii.Redactor, m *metrics.PipelineMetrics, logger *slog.Logger) *EnrichEventUseCase {
	if normalizer.Location == nil {
		normalizer.Location = time.UTC
	}
	return &EnrichEventUseCase{
		normalizer:   normalizer,
		staticFields: staticFields,
		redactor:     redactor,
		metrics:      m,
		logger:       logger,
	}
}

// Enrich sets the canonical timestamp, adds static fields without
// overwriting existing ones and redacts configured PII fields.
// A missing or unparseable timestamp tags the event and leaves Timestamp nil.
func (uc *EnrichEventUseCase) Enrich(event *domain.LogEvent) {
	raw, ok := event.Field(uc.normalizer.Field)
	switch {
	case !ok:
		event.AddTag(domain.TagTimestampFailed)
		uc.metrics.TimestampResults.WithLabelValues("missing").Inc()
	default:
		ts, err := uc.normalizer.Normalize(raw)
		if err != nil {
			event.AddTag(domain.TagTimestampFailed)
			uc.metrics.TimestampResults.WithLabelValues("failed").Inc()
			uc.logger.Debug("timestamp normalization failed", "event_id", event.ID, "error", err)
			break
		}
		event.Timestamp = &ts
		uc.metrics.TimestampResults.WithLabelValues("ok").Inc()
	}

	for k, v := range uc.staticFields {
		if _, exists := event.Field(k); !exists {
			event.SetField(k, v)
		}
	}

	if uc.redactor != nil {
		uc.redactor.Redact(event)
	}
}
