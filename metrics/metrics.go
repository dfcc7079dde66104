// Package metrics holds the Prometheus collectors shared by the reactor, the
// worker pool and the session registry, plus an HTTP handler exposing them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace is the metric namespace used when none is given.
const DefaultNamespace = "chatcore"

// Task results recorded in TasksCompleted.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultPanic = "panic"
)

// Broadcast outcomes recorded in BroadcastDeliveries.
const (
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Metrics is the set of collectors of one server instance. Each instance
// registers into its own Registerer so independent servers (and tests) never
// collide.
type Metrics struct {
	ConnectionsActive   prometheus.Gauge
	ConnectionsAccepted prometheus.Counter
	AcceptErrors        prometheus.Counter
	FramesReceived      prometheus.Counter
	MalformedFrames     prometheus.Counter
	TasksSubmitted      prometheus.Counter
	TasksRejected       prometheus.Counter
	TasksCompleted      *prometheus.CounterVec
	TaskDuration        prometheus.Histogram
	QueueDepth          prometheus.Gauge
	RegistryMembers     prometheus.Gauge
	BroadcastDeliveries *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
//
// Parameters:
//   - reg: Registerer to register into
//   - namespace: Metric namespace; DefaultNamespace when empty
//
// Returns:
//   - The registered collectors
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "connections_active",
			Help:      "Connections currently registered with the reactor",
		}),
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the reactor",
		}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "accept_errors_total",
			Help:      "Failed accept attempts",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "frames_received_total",
			Help:      "Complete frames decoded from connections",
		}),
		MalformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "frames_malformed_total",
			Help:      "Frames rejected as malformed; each one closes its connection",
		}),
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted by the worker pool",
		}),
		TasksRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_rejected_total",
			Help:      "Tasks refused because the pool was stopped",
		}),
		TasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_completed_total",
			Help:      "Tasks executed by the worker pool by result",
		}, []string{"result"}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_duration_seconds",
			Help:      "Task execution time in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		}),
		RegistryMembers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "members",
			Help:      "Connections in the session registry",
		}),
		BroadcastDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast frame deliveries by outcome",
		}, []string{"outcome"}),
	}
}

// NewUnregistered creates collectors registered into a private registry. It
// is the default for components constructed without explicit metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry(), "")
}
