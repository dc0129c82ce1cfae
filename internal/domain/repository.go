package domain

import "context"

// StorageSink is the primary destination for routed events.
// Implementations must be safe for concurrent use.
type StorageSink interface {
	// Write stores one record under its stream and date partition.
	Write(ctx context.Context, record SinkRecord) error
}

// BatchStorageSink is implemented by sinks that can store many records in one round trip.
type BatchStorageSink interface {
	StorageSink
	WriteBatch(ctx context.Context, records []SinkRecord) error
}

// DebugSink receives a copy of every routed or dropped event.
// Emit is fire-and-forget and must never block the caller.
type DebugSink interface {
	Emit(event LogEvent)
}

// SegmentRepository is an append-only, segmented event log on local disk.
type SegmentRepository interface {
	// Write appends an event to the current segment.
	Write(ctx context.Context, event LogEvent) error

	// Replay reads events from all segments in order and sends them to handler.
	Replay(ctx context.Context, handler func(event LogEvent) error) error

	// Truncate removes all segments.
	Truncate(ctx context.Context) error
}

// StreamAdminRepository exposes administrative operations on output streams.
type StreamAdminRepository interface {
	GetStreamInfo(ctx context.Context, stream string) (*StreamInfo, error)
	GetGroupInfo(ctx context.Context, stream string) ([]ConsumerGroupInfo, error)
	GetPendingSummary(ctx context.Context, stream, group string) (*PendingMessageSummary, error)
	TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error)
}
