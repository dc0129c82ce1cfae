package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/V4T54L/logflow/internal/domain"
)

// TagRedelivered marks records written by a redelivery run.
const TagRedelivered = "redelivered"

const defaultRedeliverBatch = 500

// RedeliverResult summarises one redelivery run.
type RedeliverResult struct {
	Scanned     int
	Redelivered int
	Skipped     int
}

// RedeliverUseCase replays events captured by the debug segment files back
// into the storage sink. Only routed events carrying one of the selected tags
// are written; the sinks ignore event IDs they already hold.
type RedeliverUseCase struct {
	segments  domain.SegmentRepository
	sink      domain.BatchStorageSink
	tags      []string
	batchSize int
	dryRun    bool
	logger    *slog.Logger
}

// NewRedeliverUseCase creates a new RedeliverUseCase. With no tags it selects
// sink_failed events.
func NewRedeliverUseCase(segments domain.SegmentRepository, sink domain.BatchStorageSink, tags []string, batchSize int, dryRun bool, logger *slog.Logger) *RedeliverUseCase {
	if len(tags) == 0 {
		tags = []string{domain.TagSinkFailed}
	}
	if batchSize < 1 {
		batchSize = defaultRedeliverBatch
	}
	return &RedeliverUseCase{
		segments:  segments,
		sink:      sink,
		tags:      tags,
		batchSize: batchSize,
		dryRun:    dryRun,
		logger:    logger.With("component", "redeliver"),
	}
}

// Run scans every segment once. It stops at the first failed batch write;
// batches written before it stay written.
func (uc *RedeliverUseCase) Run(ctx context.Context) (RedeliverResult, error) {
	var (
		res   RedeliverResult
		batch []domain.SinkRecord
		seen  = make(map[string]struct{})
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if !uc.dryRun {
			if err := uc.sink.WriteBatch(ctx, batch); err != nil {
				return fmt.Errorf("write batch of %d: %w", len(batch), err)
			}
		}
		res.Redelivered += len(batch)
		uc.logger.Info("redelivered batch", "count", len(batch), "dry_run", uc.dryRun)
		batch = batch[:0]
		return nil
	}

	err := uc.segments.Replay(ctx, func(event domain.LogEvent) error {
		res.Scanned++
		if !uc.selected(&event) {
			return nil
		}
		if _, dup := seen[event.ID]; dup || event.Partition == "" {
			res.Skipped++
			return nil
		}
		seen[event.ID] = struct{}{}

		event.AddTag(TagRedelivered)
		batch = append(batch, event.Record())
		if len(batch) >= uc.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func (uc *RedeliverUseCase) selected(event *domain.LogEvent) bool {
	for _, t := range uc.tags {
		if event.HasTag(t) {
			return true
		}
	}
	return false
}
