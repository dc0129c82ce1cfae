package usecase

import (
	"log/slog"
	"time"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
)

const partitionDateLayout = "2006.01.02"

// PartitionName names the time partition of stream for the UTC date of t,
// e.g. "containers-2024.01.15".
func PartitionName(stream string, t time.Time) string {
	return stream + "-" + t.UTC().Format(partitionDateLayout)
}

// RouteEventUseCase classifies events and picks their destination stream.
type RouteEventUseCase struct {
	table   *domain.RoutingTable
	debug   domain.DebugSink
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouteEventUseCase creates a new RouteEventUseCase. The routing table is
// shared read-only by all workers.
func NewRouteEventUseCase(table *domain.RoutingTable, debug domain.DebugSink, m *metrics.PipelineMetrics, logger *slog.Logger) *RouteEventUseCase {
	return &RouteEventUseCase{
		table:   table,
		debug:   debug,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Route adds classification tags, resolves the stream with first-match-wins
// semantics and names the partition. Events without a canonical timestamp are
// partitioned by processing date. A copy of every routed event goes to the
// debug sink.
func (uc *RouteEventUseCase) Route(event *domain.LogEvent) {
	for _, tag := range uc.table.Classify(event) {
		event.AddTag(tag)
	}

	event.Stream = uc.table.Resolve(event)
	partitionTime := uc.now()
	if event.Timestamp != nil {
		partitionTime = *event.Timestamp
	}
	event.Partition = PartitionName(event.Stream, partitionTime)

	uc.metrics.EventsRouted.WithLabelValues(event.Stream).Inc()
	uc.logger.Debug("routed event", "event_id", event.ID, "stream", event.Stream, "partition", event.Partition)
	uc.debug.Emit(event.Clone())
}
