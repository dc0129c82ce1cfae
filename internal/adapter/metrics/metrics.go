package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logflow"

// Drop reasons for EventsDropped.
const (
	DropShutdown = "shutdown"
	DropSink     = "sink"
)

// PipelineMetrics holds all Prometheus metrics for the pipeline.
type PipelineMetrics struct {
	EventsReceived    prometheus.Counter
	BytesTotal        prometheus.Counter
	BatchesAcked      prometheus.Counter
	ConnectionsActive prometheus.Gauge
	QueueDepth        *prometheus.GaugeVec
	ParseResults      *prometheus.CounterVec
	TimestampResults  *prometheus.CounterVec
	EventsRouted      *prometheus.CounterVec
	SinkWrites        *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	DebugEmitted      prometheus.Counter
	DebugDropped      prometheus.Counter
}

// NewPipelineMetrics creates the metrics and registers them with reg.
// Passing a fresh prometheus.NewRegistry() keeps tests isolated.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	f := promauto.With(reg)
	return &PipelineMetrics{
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of events handed to the pipeline.",
		}),
		BytesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of payload bytes received.",
		}),
		BatchesAcked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_acked_total",
			Help:      "Total number of batches acknowledged to agents.",
		}),
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "connections_active",
			Help:      "Number of open agent connections.",
		}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Events waiting in each stage's input queues.",
		}, []string{"stage"}),
		ParseResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "parse_results_total",
			Help:      "Parse outcomes by result.",
		}, []string{"result"}), // result: parsed, failed
		TimestampResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "timestamp_results_total",
			Help:      "Timestamp normalization outcomes by result.",
		}, []string{"result"}), // result: ok, failed, missing
		EventsRouted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_routed_total",
			Help:      "Events routed by destination stream.",
		}, []string{"stream"}),
		SinkWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Storage sink write attempts by status.",
		}, []string{"status"}), // status: ok, retry, failed
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_dropped_total",
			Help:      "Events not delivered to the storage sink, by reason.",
		}, []string{"reason"}),
		DebugEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debug",
			Name:      "events_total",
			Help:      "Events written to the debug sinks.",
		}),
		DebugDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debug",
			Name:      "dropped_total",
			Help:      "Debug copies discarded because the debug buffer was full.",
		}),
	}
}
