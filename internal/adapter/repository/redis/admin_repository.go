package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/logflow/internal/domain"
)

// AdminRepository implements the domain.StreamAdminRepository interface for Redis.
type AdminRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewAdminRepository creates a new Redis admin repository.
func NewAdminRepository(client *redis.Client, logger *slog.Logger) *AdminRepository {
	return &AdminRepository{
		client: client,
		logger: logger.With("component", "redis_admin"),
	}
}

// GetStreamInfo reports the length and the first and last entry IDs of a stream.
func (r *AdminRepository) GetStreamInfo(ctx context.Context, stream string) (*domain.StreamInfo, error) {
	length, err := r.client.XLen(ctx, stream).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get length of stream %s: %w", stream, err)
	}
	info := &domain.StreamInfo{Name: stream, Length: length}
	if length == 0 {
		return info, nil
	}

	first, err := r.client.XRangeN(ctx, stream, "-", "+", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read first entry of stream %s: %w", stream, err)
	}
	last, err := r.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read last entry of stream %s: %w", stream, err)
	}
	if len(first) > 0 {
		info.FirstEntryID = first[0].ID
	}
	if len(last) > 0 {
		info.LastEntryID = last[0].ID
	}

	groups, err := r.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get groups of stream %s: %w", stream, err)
	}
	info.Groups = int64(len(groups))
	return info, nil
}

// GetGroupInfo retrieves information about all consumer groups for a given stream.
func (r *AdminRepository) GetGroupInfo(ctx context.Context, stream string) ([]domain.ConsumerGroupInfo, error) {
	groups, err := r.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get group info for stream %s: %w", stream, err)
	}

	result := make([]domain.ConsumerGroupInfo, len(groups))
	for i, g := range groups {
		result[i] = domain.ConsumerGroupInfo{
			Name:            g.Name,
			Consumers:       g.Consumers,
			Pending:         g.Pending,
			LastDeliveredID: g.LastDeliveredID,
		}
	}
	return result, nil
}

// GetPendingSummary retrieves a summary of pending messages for a group.
func (r *AdminRepository) GetPendingSummary(ctx context.Context, stream, group string) (*domain.PendingMessageSummary, error) {
	pending, err := r.client.XPending(ctx, stream, group).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending summary for stream %s, group %s: %w", stream, group, err)
	}

	return &domain.PendingMessageSummary{
		Total:          pending.Count,
		FirstMessageID: pending.Lower,
		LastMessageID:  pending.Higher,
		ConsumerTotals: pending.Consumers,
	}, nil
}

// TrimStream trims a stream to a maximum length and returns the number of
// entries removed.
func (r *AdminRepository) TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error) {
	n, err := r.client.XTrimMaxLen(ctx, stream, maxLen).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim stream %s: %w", stream, err)
	}
	r.logger.Info("trimmed stream", "stream", stream, "max_len", maxLen, "removed", n)
	return n, nil
}

var _ domain.StreamAdminRepository = (*AdminRepository)(nil)
