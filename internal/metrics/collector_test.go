package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dantte-lp/tuplespaced/internal/metrics"
	"github.com/dantte-lp/tuplespaced/internal/wire"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.TuplesStored == nil {
		t.Error("TuplesStored is nil")
	}
	if c.ActiveSessions == nil {
		t.Error("ActiveSessions is nil")
	}
	if c.BlockedWaiters == nil {
		t.Error("BlockedWaiters is nil")
	}
	if c.Operations == nil {
		t.Error("Operations is nil")
	}
	if c.BlockingWaitSeconds == nil {
		t.Error("BlockingWaitSeconds is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionLifecycleGauge(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector(prometheus.NewRegistry())

	c.SessionOpened()
	c.SessionOpened()
	if got := gaugeValue(t, c.ActiveSessions); got != 2 {
		t.Errorf("ActiveSessions = %v, want 2", got)
	}

	c.SessionClosed()
	if got := gaugeValue(t, c.ActiveSessions); got != 1 {
		t.Errorf("ActiveSessions = %v, want 1", got)
	}
}

func TestWaiterGauge(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector(prometheus.NewRegistry())

	c.WaiterStarted()
	c.WaiterStarted()
	c.WaiterStarted()
	if got := gaugeValue(t, c.BlockedWaiters); got != 3 {
		t.Errorf("BlockedWaiters = %v, want 3", got)
	}

	c.WaiterFinished()
	c.WaiterFinished()
	if got := gaugeValue(t, c.BlockedWaiters); got != 1 {
		t.Errorf("BlockedWaiters = %v, want 1", got)
	}
}

func TestSetTuplesStored(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector(prometheus.NewRegistry())

	c.SetTuplesStored(42)
	if got := gaugeValue(t, c.TuplesStored); got != 42 {
		t.Errorf("TuplesStored = %v, want 42", got)
	}

	c.SetTuplesStored(0)
	if got := gaugeValue(t, c.TuplesStored); got != 0 {
		t.Errorf("TuplesStored = %v, want 0", got)
	}
}

func TestOperationResultCounter(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector(prometheus.NewRegistry())

	c.OperationResult(wire.OpOut, wire.ErrorNone)
	c.OperationResult(wire.OpOut, wire.ErrorNone)
	c.OperationResult(wire.OpOut, wire.ErrorTupleAlreadyPresent)
	c.OperationResult(wire.OpInBl, wire.ErrorNone)

	if got := counterValue(t, c.Operations, string(wire.OpOut), string(wire.ErrorNone)); got != 2 {
		t.Errorf("Operations(Out, NoError) = %v, want 2", got)
	}
	if got := counterValue(t, c.Operations, string(wire.OpOut), string(wire.ErrorTupleAlreadyPresent)); got != 1 {
		t.Errorf("Operations(Out, TupleAlreadyPresentError) = %v, want 1", got)
	}
	if got := counterValue(t, c.Operations, string(wire.OpInBl), string(wire.ErrorNone)); got != 1 {
		t.Errorf("Operations(InBl, NoError) = %v, want 1", got)
	}
}

func TestBlockingWaitDuration(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector(prometheus.NewRegistry())

	c.BlockingWaitDuration(wire.OpRdBl, 50*time.Millisecond)

	m := &dto.Metric{}
	hist, err := c.BlockingWaitSeconds.GetMetricWithLabelValues(string(wire.OpRdBl))
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	if err := hist.(prometheus.Histogram).Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %v, want 1", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
