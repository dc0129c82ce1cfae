package usecase

import (
	"log/slog"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/pkg/pattern"
)

// ParseEventUseCase extracts fields from an event's raw message.
type ParseEventUseCase struct {
	patterns *pattern.Set
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
}

// NewParseEventUseCase creates a new ParseEventUseCase. The pattern set is
// shared read-only by all workers.
func NewParseEventUseCase(patterns *pattern.Set, m *metrics.PipelineMetrics, logger *slog.Logger) *ParseEventUseCase {
	return &ParseEventUseCase{
		patterns: patterns,
		metrics:  m,
		logger:   logger,
	}
}

// Parse applies the first matching pattern. Unmatched events keep their raw
// text as the message and are tagged parse_failed; they are never rejected.
func (uc *ParseEventUseCase) Parse(event *domain.LogEvent) {
	name, res := uc.patterns.Match(event.RawMessage)
	if !res.Matched {
		event.SetField(domain.FieldMessage, event.RawMessage)
		event.AddTag(domain.TagParseFailed)
		uc.metrics.ParseResults.WithLabelValues("failed").Inc()
		return
	}

	for k, v := range res.Fields {
		event.SetField(k, v)
	}
	if _, ok := event.Field(domain.FieldMessage); !ok {
		event.SetField(domain.FieldMessage, res.Remainder)
	}
	event.AddTag(domain.TagParsed)
	uc.metrics.ParseResults.WithLabelValues("parsed").Inc()
	uc.logger.Debug("parsed event", "event_id", event.ID, "pattern", name)
}
