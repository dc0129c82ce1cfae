package debug

import (
	"context"
	"log/slog"

	"github.com/V4T54L/logflow/internal/domain"
)

// Console writes events as structured log records.
type Console struct {
	logger *slog.Logger
}

// NewConsole creates a console target writing through logger.
func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger.With("component", "debug_console")}
}

func (c *Console) Write(ctx context.Context, event domain.LogEvent) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("source_id", event.SourceID),
		slog.String("stream", event.Stream),
		slog.String("partition", event.Partition),
		slog.Any("tags", event.Tags),
		slog.Any("fields", event.Fields),
	}
	if event.Timestamp != nil {
		attrs = append(attrs, slog.Time("timestamp", *event.Timestamp))
	}

	level := slog.LevelInfo
	if event.HasTag(domain.TagSinkFailed) || event.HasTag(domain.TagShutdownDropped) {
		level = slog.LevelWarn
	}
	c.logger.LogAttrs(ctx, level, "pipeline event", attrs...)
	return nil
}
