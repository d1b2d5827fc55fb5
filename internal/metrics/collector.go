// Package metrics exposes the tuple-space daemon's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/tuplespaced/internal/wire"
)

const (
	namespace = "tuplespaced"
	subsystem = "space"
)

const (
	labelOperation = "operation"
	labelResult    = "result"
)

// Collector holds every tuple-space Prometheus metric and implements
// dispatch.Metrics, so a *Collector can be passed directly to
// dispatch.WithMetrics.
type Collector struct {
	// TuplesStored tracks the current number of tuples held in the space.
	TuplesStored prometheus.Gauge

	// ActiveSessions tracks the number of currently connected sessions.
	ActiveSessions prometheus.Gauge

	// BlockedWaiters tracks the number of In/Rd requests currently blocked
	// waiting for a matching tuple to appear.
	BlockedWaiters prometheus.Gauge

	// Operations counts completed requests by operation kind and outcome
	// (NoError or one of the domain error tags).
	Operations *prometheus.CounterVec

	// BlockingWaitSeconds records how long blocking In/Rd requests spent
	// waiting before a match was found, labeled by operation kind.
	BlockingWaitSeconds *prometheus.HistogramVec
}

// NewCollector builds a Collector and registers it against reg. A nil reg
// registers against prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newCollector()

	reg.MustRegister(
		c.TuplesStored,
		c.ActiveSessions,
		c.BlockedWaiters,
		c.Operations,
		c.BlockingWaitSeconds,
	)

	return c
}

func newCollector() *Collector {
	return &Collector{
		TuplesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tuples_stored",
			Help:      "Number of tuples currently held in the space.",
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Number of currently connected client sessions.",
		}),

		BlockedWaiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocked_waiters",
			Help:      "Number of blocking In/Rd requests currently waiting for a match.",
		}),

		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Total completed operations, labeled by operation kind and result.",
		}, []string{labelOperation, labelResult}),

		BlockingWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocking_wait_seconds",
			Help:      "Time a blocking In/Rd request spent waiting for a match.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{labelOperation}),
	}
}

// SessionOpened increments the active sessions gauge.
func (c *Collector) SessionOpened() { c.ActiveSessions.Inc() }

// SessionClosed decrements the active sessions gauge.
func (c *Collector) SessionClosed() { c.ActiveSessions.Dec() }

// WaiterStarted increments the blocked waiters gauge.
func (c *Collector) WaiterStarted() { c.BlockedWaiters.Inc() }

// WaiterFinished decrements the blocked waiters gauge.
func (c *Collector) WaiterFinished() { c.BlockedWaiters.Dec() }

// OperationResult increments the per-operation, per-result counter.
func (c *Collector) OperationResult(op wire.OperationKind, result wire.Error) {
	c.Operations.WithLabelValues(string(op), string(result)).Inc()
}

// BlockingWaitDuration records how long a blocking operation waited before
// it completed successfully.
func (c *Collector) BlockingWaitDuration(op wire.OperationKind, d time.Duration) {
	c.BlockingWaitSeconds.WithLabelValues(string(op)).Observe(d.Seconds())
}

// SetTuplesStored sets the current tuple count gauge to n. Called by the
// daemon's periodic poller with Space.Snapshot().Count rather than on every
// Out/Take, so the count stays off the hot path of every operation.
func (c *Collector) SetTuplesStored(n int) {
	c.TuplesStored.Set(float64(n))
}
