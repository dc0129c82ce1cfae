package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
)

var (
	// ErrPipelineClosed is returned by Submit once shutdown has begun.
	ErrPipelineClosed = errors.New("pipeline is closed")
	// ErrDrainTimeout is returned by Shutdown when in-flight events had to be dropped.
	ErrDrainTimeout = errors.New("pipeline drain timed out")
)

// Stage names, also used as metric labels.
const (
	StageParse   = "parse"
	StageEnrich  = "enrich"
	StageRoute   = "route"
	StageDeliver = "deliver"
)

const queueSampleInterval = time.Second

// StageConfig sizes one stage.
type StageConfig struct {
	Workers   int
	QueueSize int
}

// PipelineConfig sizes the whole pipeline.
type PipelineConfig struct {
	Parse           StageConfig
	Enrich          StageConfig
	Route           StageConfig
	Deliver         StageConfig
	ShutdownTimeout time.Duration
}

// Stages bundles the per-stage use cases run by the pipeline workers.
type Stages struct {
	Parser    *ParseEventUseCase
	Enricher  *EnrichEventUseCase
	Router    *RouteEventUseCase
	Deliverer *DeliverEventUseCase
}

type stage struct {
	name    string
	queues  []chan *domain.LogEvent
	wg      sync.WaitGroup
	process func(ctx context.Context, event *domain.LogEvent) bool
}

func newStage(name string, cfg StageConfig) *stage {
	workers := max(cfg.Workers, 1)
	// Per-shard capacity; the stage as a whole holds at least QueueSize events.
	perShard := max((cfg.QueueSize+workers-1)/workers, 1)
	s := &stage{name: name, queues: make([]chan *domain.LogEvent, workers)}
	for i := range s.queues {
		s.queues[i] = make(chan *domain.LogEvent, perShard)
	}
	return s
}

// queueFor picks the shard for a source so one connection's events stay in
// order through every stage.
func (s *stage) queueFor(sourceID string) chan *domain.LogEvent {
	if len(s.queues) == 1 {
		return s.queues[0]
	}
	return s.queues[xxhash.Sum64String(sourceID)%uint64(len(s.queues))]
}

func (s *stage) depth() (n, capacity int) {
	for _, q := range s.queues {
		n += len(q)
		capacity += cap(q)
	}
	return n, capacity
}

// Pipeline runs parse, enrich, route and deliver stages connected by bounded,
// sharded queues. A full queue blocks its producer; nothing is dropped except
// on sink exhaustion or shutdown timeout.
type Pipeline struct {
	stages          []*stage
	debug           domain.DebugSink
	metrics         *metrics.PipelineMetrics
	logger          *slog.Logger
	shutdownTimeout time.Duration

	// mu guards closed and sends into the first stage's queues.
	mu        sync.RWMutex
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once
	startOnce sync.Once

	hardCtx    context.Context
	hardCancel context.CancelFunc
	done       chan struct{}

	submitted atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewPipeline creates a pipeline. Call Start before Submit.
func NewPipeline(cfg PipelineConfig, st Stages, debug domain.DebugSink, m *metrics.PipelineMetrics, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		debug:           debug,
		metrics:         m,
		logger:          logger.With("component", "pipeline"),
		shutdownTimeout: cfg.ShutdownTimeout,
		closing:         make(chan struct{}),
		done:            make(chan struct{}),
	}
	p.hardCtx, p.hardCancel = context.WithCancel(context.Background())

	parse := newStage(StageParse, cfg.Parse)
	parse.process = func(_ context.Context, e *domain.LogEvent) bool {
		st.Parser.Parse(e)
		return true
	}
	enrich := newStage(StageEnrich, cfg.Enrich)
	enrich.process = func(_ context.Context, e *domain.LogEvent) bool {
		st.Enricher.Enrich(e)
		return true
	}
	route := newStage(StageRoute, cfg.Route)
	route.process = func(_ context.Context, e *domain.LogEvent) bool {
		st.Router.Route(e)
		return true
	}
	deliver := newStage(StageDeliver, cfg.Deliver)
	deliver.process = func(ctx context.Context, e *domain.LogEvent) bool {
		err := st.Deliverer.Deliver(ctx, e)
		switch {
		case err == nil:
			p.delivered.Add(1)
		case errors.Is(err, ErrSinkExhausted):
			p.dropped.Add(1)
		default:
			p.drop(e, metrics.DropShutdown)
		}
		return false
	}

	p.stages = []*stage{parse, enrich, route, deliver}
	return p
}

// Start launches the stage workers.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		for i, s := range p.stages {
			var next *stage
			if i+1 < len(p.stages) {
				next = p.stages[i+1]
			}
			for _, q := range s.queues {
				s.wg.Add(1)
				go p.runWorker(s, q, next)
			}
		}

		// Each stage closes its successor's queues once all its workers exit.
		go func() {
			for i, s := range p.stages {
				s.wg.Wait()
				if i+1 < len(p.stages) {
					for _, q := range p.stages[i+1].queues {
						close(q)
					}
				}
			}
			close(p.done)
		}()

		go p.sampleQueues()
		p.logger.Info("pipeline started")
	})
}

func (p *Pipeline) runWorker(s *stage, in <-chan *domain.LogEvent, next *stage) {
	defer s.wg.Done()
	for event := range in {
		if p.hardCtx.Err() != nil {
			p.drop(event, metrics.DropShutdown)
			continue
		}
		if !s.process(p.hardCtx, event) || next == nil {
			continue
		}
		select {
		case next.queueFor(event.SourceID) <- event:
		case <-p.hardCtx.Done():
			p.drop(event, metrics.DropShutdown)
		}
	}
}

// Submit hands an event to the parse stage, blocking while its queue is full.
// A nil return means the event is owned by the pipeline.
func (p *Pipeline) Submit(ctx context.Context, event *domain.LogEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}

	select {
	case p.stages[0].queueFor(event.SourceID) <- event:
		p.submitted.Add(1)
		return nil
	case <-p.closing:
		return ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events and drains every stage. If draining takes
// longer than the shutdown timeout, or ctx ends first, the remaining events
// are dropped, counted and sent to the debug sink, and ErrDrainTimeout is returned.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.mu.Lock()
		p.closed = true
		for _, q := range p.stages[0].queues {
			close(q)
		}
		p.mu.Unlock()
		p.logger.Info("pipeline draining", "timeout", p.shutdownTimeout)
	})

	var timeout <-chan time.Time
	if p.shutdownTimeout > 0 {
		timer := time.NewTimer(p.shutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.done:
		p.hardCancel()
		p.logger.Info("pipeline drained", "delivered", p.delivered.Load(), "dropped", p.dropped.Load())
		return nil
	case <-timeout:
	case <-ctx.Done():
	}

	before := p.dropped.Load()
	p.hardCancel()
	<-p.done
	lost := p.dropped.Load() - before
	p.logger.Warn("pipeline drain timed out, dropped in-flight events", "dropped", lost)
	return fmt.Errorf("%w: %d in-flight events dropped", ErrDrainTimeout, lost)
}

// Done is closed once every stage has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Stats returns a point-in-time snapshot.
func (p *Pipeline) Stats() domain.PipelineStats {
	stats := domain.PipelineStats{
		Submitted: p.submitted.Load(),
		Delivered: p.delivered.Load(),
		Dropped:   p.dropped.Load(),
	}
	for _, s := range p.stages {
		n, c := s.depth()
		stats.Stages = append(stats.Stages, domain.StageStats{
			Name:       s.name,
			Workers:    len(s.queues),
			QueueDepth: n,
			QueueCap:   c,
		})
	}
	p.mu.RLock()
	stats.Closed = p.closed
	p.mu.RUnlock()
	return stats
}

func (p *Pipeline) drop(event *domain.LogEvent, reason string) {
	p.dropped.Add(1)
	p.metrics.EventsDropped.WithLabelValues(reason).Inc()
	event.AddTag(domain.TagShutdownDropped)
	p.debug.Emit(event.Clone())
}

func (p *Pipeline) sampleQueues() {
	ticker := time.NewTicker(queueSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, s := range p.stages {
				n, _ := s.depth()
				p.metrics.QueueDepth.WithLabelValues(s.name).Set(float64(n))
			}
		case <-p.done:
			return
		}
	}
}
