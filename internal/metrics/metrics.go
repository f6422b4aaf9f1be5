// Package metrics provides Prometheus instrumentation for the scheduling
// core. All methods are safe on a nil *Metrics so callers can treat
// instrumentation as optional.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "sendlater" namespace.
	Namespace string
}

type Metrics struct {
	scheduled prometheus.Counter
	sent      prometheus.Counter
	cancelled prometheus.Counter
	failed    prometheus.Counter
	rejected  *prometheus.CounterVec
	pending   prometheus.Gauge
}

// New registers the task metrics. Returns (nil, nil) when disabled.
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "sendlater"
	}

	m := &Metrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_scheduled_total",
			Help: "Tasks accepted by the registry.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_sent_total",
			Help: "Tasks whose payload was delivered.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_cancelled_total",
			Help: "Tasks cancelled before their trigger fired.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_failed_total",
			Help: "Tasks whose delivery attempt failed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "tasks_rejected_total",
			Help: "Schedule requests rejected before a task was created.",
		}, []string{"reason"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "tasks_pending",
			Help: "Tasks currently waiting for their trigger.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.scheduled, m.sent, m.cancelled, m.failed, m.rejected, m.pending,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Scheduled() {
	if m != nil {
		m.scheduled.Inc()
		m.pending.Inc()
	}
}

func (m *Metrics) Sent() {
	if m != nil {
		m.sent.Inc()
		m.pending.Dec()
	}
}

func (m *Metrics) Cancelled() {
	if m != nil {
		m.cancelled.Inc()
		m.pending.Dec()
	}
}

func (m *Metrics) Failed() {
	if m != nil {
		m.failed.Inc()
		m.pending.Dec()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}
