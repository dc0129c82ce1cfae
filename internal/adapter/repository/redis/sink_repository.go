package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/logflow/internal/domain"
)

// Entry field names of every stream message.
const (
	fieldPayload = "payload"
	fieldEventID = "event_id"
	fieldStream  = "stream"
)

// SinkRepository appends routed events to Redis Streams, one stream key per
// partition (e.g. "containers-2024.01.15").
type SinkRepository struct {
	client *redis.Client
	maxLen int64
	logger *slog.Logger
}

// NewSinkRepository creates a new Redis-backed sink. A positive maxLen caps
// every partition stream approximately at that many entries.
func NewSinkRepository(client *redis.Client, maxLen int64, logger *slog.Logger) *SinkRepository {
	return &SinkRepository{
		client: client,
		maxLen: maxLen,
		logger: logger.With("component", "redis_sink"),
	}
}

// Ping checks that Redis is reachable.
func (r *SinkRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Write appends one record to its partition stream.
func (r *SinkRepository) Write(ctx context.Context, record domain.SinkRecord) error {
	args, err := r.xaddArgs(record)
	if err != nil {
		return err
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		if isNetworkError(err) {
			r.logger.Warn("Redis unavailable during write", "event_id", record.EventID, "error", err)
		}
		return fmt.Errorf("failed to XADD to redis stream %s: %w", record.Partition, err)
	}
	return nil
}

// WriteBatch appends records in one pipelined round trip.
func (r *SinkRepository) WriteBatch(ctx context.Context, records []domain.SinkRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, record := range records {
		args, err := r.xaddArgs(record)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute XADD pipeline: %w", err)
	}
	return nil
}

func (r *SinkRepository) xaddArgs(record domain.SinkRecord) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", record.EventID, err)
	}
	args := &redis.XAddArgs{
		Stream: record.Partition,
		Values: map[string]any{
			fieldEventID: record.EventID,
			fieldStream:  record.Stream,
			fieldPayload: payload,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return args, nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}
