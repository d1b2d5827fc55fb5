package tuplespace_test

import (
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"go.uber.org/goleak"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestSpace(t *testing.T) *tuplespace.Space {
	t.Helper()
	s := tuplespace.NewSpace()
	t.Cleanup(s.Close)
	return s
}

// TestOutTakeRoundTrip exercises invariant 4.
func TestOutTakeRoundTrip(t *testing.T) {
	s := newTestSpace(t)
	tup := intTuple(1, 2)

	if err := s.Out(tup); err != nil {
		t.Fatalf("Out() error = %v", err)
	}

	template := tuplespace.NewTuple(
		tuplespace.Wildcard(tuplespace.KindInteger),
		tuplespace.Wildcard(tuplespace.KindInteger),
	)

	got, err := s.Take(template)
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if len(got) != 1 || !got[0].Equal(tup) {
		t.Fatalf("Take() = %v, want [%v]", got, tup)
	}

	if _, err := s.Take(template); !errors.Is(err, tuplespace.ErrNoMatchingTuple) {
		t.Fatalf("second Take() error = %v, want ErrNoMatchingTuple", err)
	}
}

// TestOutDuplicateRejected exercises invariants 2 and 6.
func TestOutDuplicateRejected(t *testing.T) {
	s := newTestSpace(t)
	tup := intTuple(1, 2)

	if err := s.Out(tup); err != nil {
		t.Fatalf("first Out() error = %v", err)
	}
	if err := s.Out(tup); !errors.Is(err, tuplespace.ErrTupleAlreadyPresent) {
		t.Fatalf("second Out() error = %v, want ErrTupleAlreadyPresent", err)
	}

	snap := s.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("space contains %d tuples, want exactly 1", snap.Count)
	}
}

// TestOutRejectsTemplate exercises invariant 7.
func TestOutRejectsTemplate(t *testing.T) {
	s := newTestSpace(t)
	template := tuplespace.NewTuple(tuplespace.Wildcard(tuplespace.KindInteger))

	if err := s.Out(template); !errors.Is(err, tuplespace.ErrTupleNotOnlyData) {
		t.Fatalf("Out() error = %v, want ErrTupleNotOnlyData", err)
	}
	if s.Snapshot().Count != 0 {
		t.Fatal("space should remain empty after a rejected Out")
	}
}

// TestTakePeekRejectDataOnly exercises invariant 7.
func TestTakePeekRejectDataOnly(t *testing.T) {
	s := newTestSpace(t)
	data := intTuple(1)

	if _, err := s.Take(data); !errors.Is(err, tuplespace.ErrTupleOnlyData) {
		t.Fatalf("Take() error = %v, want ErrTupleOnlyData", err)
	}
	if _, err := s.Peek(data); !errors.Is(err, tuplespace.ErrTupleOnlyData) {
		t.Fatalf("Peek() error = %v, want ErrTupleOnlyData", err)
	}
}

// TestPeekIdempotent exercises invariant 5.
func TestPeekIdempotent(t *testing.T) {
	s := newTestSpace(t)
	if err := s.Out(intTuple(1, 2)); err != nil {
		t.Fatalf("Out() error = %v", err)
	}

	template := tuplespace.NewTuple(
		tuplespace.Wildcard(tuplespace.KindInteger),
		tuplespace.Concrete(tuplespace.NewIntegerValue(2)),
	)

	first, err := s.Peek(template)
	if err != nil {
		t.Fatalf("first Peek() error = %v", err)
	}
	second, err := s.Peek(template)
	if err != nil {
		t.Fatalf("second Peek() error = %v", err)
	}

	if len(first) != len(second) || !first[0].Equal(second[0]) {
		t.Fatalf("successive Peek() calls disagree: %v vs %v", first, second)
	}
	if s.Snapshot().Count != 1 {
		t.Fatal("Peek must not remove tuples")
	}
}

// TestMultiMatch exercises scenario S6.
func TestMultiMatch(t *testing.T) {
	s := newTestSpace(t)
	for i := int32(1); i <= 8; i++ {
		if err := s.Out(intTuple(i, i)); err != nil {
			t.Fatalf("Out(%d,%d) error = %v", i, i, err)
		}
	}

	narrow := tuplespace.NewTuple(
		tuplespace.Concrete(tuplespace.NewIntegerValue(2)),
		tuplespace.Wildcard(tuplespace.KindInteger),
	)
	got, err := s.Peek(narrow)
	if err != nil {
		t.Fatalf("Peek(narrow) error = %v", err)
	}
	if len(got) != 1 || !got[0].Equal(intTuple(2, 2)) {
		t.Fatalf("Peek(narrow) = %v, want [(2,2)]", got)
	}

	wide := tuplespace.NewTuple(
		tuplespace.Wildcard(tuplespace.KindInteger),
		tuplespace.Wildcard(tuplespace.KindInteger),
	)
	all, err := s.Take(wide)
	if err != nil {
		t.Fatalf("Take(wide) error = %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("Take(wide) returned %d tuples, want 8", len(all))
	}
	if s.Snapshot().Count != 0 {
		t.Fatal("space should be empty after taking every tuple")
	}
}

// TestBlockingLiveness exercises invariant 8: a blocked waiter retrying
// under the space's condition variable eventually observes a tuple
// inserted after it started waiting.
func TestBlockingLiveness(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := newTestSpace(t)

		template := tuplespace.NewTuple(
			tuplespace.Wildcard(tuplespace.KindInteger),
			tuplespace.Concrete(tuplespace.NewIntegerValue(2)),
		)

		resultCh := make(chan tuplespace.Tuple, 1)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			version := s.Version()
			for {
				got, err := s.Take(template)
				if err == nil {
					resultCh <- got[0]
					return
				}
				version = s.WaitForChange(version)
			}
		}()

		synctest.Wait()

		if err := s.Out(intTuple(5, 2)); err != nil {
			t.Fatalf("Out() error = %v", err)
		}

		wg.Wait()

		select {
		case got := <-resultCh:
			if !got.Equal(intTuple(5, 2)) {
				t.Fatalf("blocked Take() observed %v, want (5,2)", got)
			}
		default:
			t.Fatal("blocked Take() never produced a result")
		}
	})
}

// TestSnapshotArityHistogram exercises the additive introspection accessor.
func TestSnapshotArityHistogram(t *testing.T) {
	s := newTestSpace(t)
	if err := s.Out(intTuple(1)); err != nil {
		t.Fatalf("Out() error = %v", err)
	}
	if err := s.Out(intTuple(1, 2)); err != nil {
		t.Fatalf("Out() error = %v", err)
	}

	snap := s.Snapshot()
	if snap.Count != 2 {
		t.Fatalf("Count = %d, want 2", snap.Count)
	}
	if snap.ArityHistogram[1] != 1 || snap.ArityHistogram[2] != 1 {
		t.Fatalf("ArityHistogram = %v, want {1:1, 2:1}", snap.ArityHistogram)
	}
}

// TestConcurrentOutUniqueness hammers Out from many goroutines with the
// same tuple and verifies exactly one succeeds, exercising invariant 2
// under real contention (not synctest, since the point is genuine races).
func TestConcurrentOutUniqueness(t *testing.T) {
	s := newTestSpace(t)
	tup := intTuple(42, 42)

	const n = 64
	results := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- s.Out(tup)
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, tuplespace.ErrTupleAlreadyPresent) {
			t.Fatalf("unexpected Out() error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
	if s.Snapshot().Count != 1 {
		t.Fatal("space should contain exactly one tuple")
	}
}

// TestWaitForChangeTimesOutEventually verifies the liveness ticker wakes
// waiters even without an intervening Out, so a dispatcher polling
// connection health never blocks forever.
func TestWaitForChangeTimesOutEventually(t *testing.T) {
	s := newTestSpace(t)

	done := make(chan struct{})
	go func() {
		s.WaitForChange(s.Version())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForChange did not wake on the liveness tick")
	}
}
