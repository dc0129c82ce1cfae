// Package debug fans copies of pipeline events out to diagnostic outputs
// without ever blocking the pipeline.
package debug

import (
	"context"
	"log/slog"
	"sync"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
)

// Target is one diagnostic output. domain.SegmentRepository satisfies it.
type Target interface {
	Write(ctx context.Context, event domain.LogEvent) error
}

// Dispatcher implements domain.DebugSink. Emit enqueues into a bounded buffer
// and discards the copy when the buffer is full; a single goroutine writes
// queued events to every target in order.
type Dispatcher struct {
	events  chan domain.LogEvent
	targets []Target
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher creates a dispatcher with the given buffer size. Call Start
// to begin writing.
func NewDispatcher(bufferSize int, m *metrics.PipelineMetrics, logger *slog.Logger, targets ...Target) *Dispatcher {
	return &Dispatcher{
		events:  make(chan domain.LogEvent, max(bufferSize, 1)),
		targets: targets,
		metrics: m,
		logger:  logger.With("component", "debug_dispatcher"),
		done:    make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

// Emit queues a copy of event. It never blocks.
func (d *Dispatcher) Emit(event domain.LogEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.DebugDropped.Inc()
		return
	}
	select {
	case d.events <- event:
	default:
		d.metrics.DebugDropped.Inc()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ctx := context.Background()
	for event := range d.events {
		for _, t := range d.targets {
			if err := t.Write(ctx, event); err != nil {
				d.logger.Warn("debug target write failed", "event_id", event.ID, "error", err)
			}
		}
		d.metrics.DebugEmitted.Inc()
	}
}

// Close stops accepting events and waits for queued ones to be written, or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
	})
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
