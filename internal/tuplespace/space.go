package tuplespace

import (
	"errors"
	"sync"
	"time"
)

// livenessTick is the interval at which the space's condition variable is
// woken even absent a successful Out, purely so blocked waiters get a
// chance to notice their connection has closed. It carries no version bump,
// so genuine retries (triggered by Out) are never confused with a liveness
// tick.
const livenessTick = 200 * time.Millisecond

// Domain errors raised by the three core primitives. Only these four plus
// ErrInvariantViolation (wire name "Error"/InternalError) are ever returned
// by Out, Take, or Peek.
var (
	// ErrTupleAlreadyPresent is returned by Out when an equal tuple is
	// already stored. The space is a set, not a bag.
	ErrTupleAlreadyPresent = errors.New("tuplespace: tuple already present")

	// ErrTupleNotOnlyData is returned by Out when the argument contains a
	// Wildcard field.
	ErrTupleNotOnlyData = errors.New("tuplespace: tuple is not data-only")

	// ErrTupleOnlyData is returned by Take/Peek when the argument is
	// data-only (a template must contain at least one Wildcard).
	ErrTupleOnlyData = errors.New("tuplespace: template is data-only")

	// ErrNoMatchingTuple is returned by Take/Peek when no stored tuple
	// matches the template.
	ErrNoMatchingTuple = errors.New("tuplespace: no matching tuple")
)

// Space is the shared, concurrently-accessed bag of data-only tuples. A
// single mutex serializes every Out/Take/Peek body; a single condition
// variable attached to that mutex is broadcast after every successful Out,
// so that blocked waiters (implemented one layer up, in the dispatcher) can
// re-evaluate their templates.
//
// The zero value is not usable; construct with NewSpace.
type Space struct {
	mu           sync.Mutex
	cond         *sync.Cond
	tuples       []Tuple
	version      uint64 // bumped on every successful Out; lets waiters detect missed wakeups cheaply
	livenessTick time.Duration

	closeOnce sync.Once
	closeCh   chan struct{}
}

// SpaceOption configures optional Space behavior at construction time.
type SpaceOption func(*Space)

// WithLivenessTick overrides the default liveness-tick interval. Panics if d
// is not positive; callers are expected to have already validated
// configuration (see config.Validate).
func WithLivenessTick(d time.Duration) SpaceOption {
	if d <= 0 {
		panic("tuplespace: liveness tick must be positive")
	}
	return func(s *Space) { s.livenessTick = d }
}

// NewSpace returns an empty Space ready for use. The returned Space owns a
// background goroutine (the liveness ticker); call Close when the space is
// no longer needed to stop it.
func NewSpace(opts ...SpaceOption) *Space {
	s := &Space{closeCh: make(chan struct{}), livenessTick: livenessTick}
	for _, opt := range opts {
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)
	go s.tickLiveness()
	return s
}

// Close stops the space's background liveness ticker. Safe to call more
// than once; safe to call even while waiters are blocked in WaitForChange
// (they will simply stop receiving further liveness wakeups).
func (s *Space) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
}

// tickLiveness periodically broadcasts on the condition variable without
// bumping version, so every blocked waiter wakes at a bounded interval to
// re-check whether its owning connection is still alive.
func (s *Space) tickLiveness() {
	ticker := time.NewTicker(s.livenessTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		}
	}
}

// Out inserts tuple into the space if no equal tuple is already present.
// tuple must be data-only; otherwise Out fails with ErrTupleNotOnlyData
// without touching the space. On success every blocked waiter is woken so
// it may re-check its template.
func (s *Space) Out(tuple Tuple) error {
	if !tuple.IsDataOnly() {
		return ErrTupleNotOnlyData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.tuples {
		if Equal(stored, tuple) {
			return ErrTupleAlreadyPresent
		}
	}

	s.tuples = append(s.tuples, tuple)
	s.version++
	s.cond.Broadcast()

	return nil
}

// Take performs a destructive match: every stored tuple matching template is
// removed from the space and returned. template must contain at least one
// Wildcard; otherwise Take fails with ErrTupleOnlyData. If nothing matches,
// Take fails with ErrNoMatchingTuple and the space is unchanged. The scan
// and the removal happen atomically with respect to every other
// Out/Take/Peek.
func (s *Space) Take(template Tuple) ([]Tuple, error) {
	if template.IsDataOnly() {
		return nil, ErrTupleOnlyData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched, rest, err := partition(template, s.tuples)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, ErrNoMatchingTuple
	}

	s.tuples = rest

	return matched, nil
}

// Peek performs a non-destructive match: every stored tuple matching
// template is returned without removing it. Same input constraint and
// failure mode as Take.
func (s *Space) Peek(template Tuple) ([]Tuple, error) {
	if template.IsDataOnly() {
		return nil, ErrTupleOnlyData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched, _, err := partition(template, s.tuples)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, ErrNoMatchingTuple
	}

	return matched, nil
}

// partition scans tuples in order, splitting them into those that match
// template and those that don't. It never mutates its input slice.
func partition(template Tuple, tuples []Tuple) (matched, rest []Tuple, err error) {
	matched = make([]Tuple, 0, len(tuples))
	rest = make([]Tuple, 0, len(tuples))

	for _, t := range tuples {
		ok, mErr := Matches(template, t)
		if mErr != nil {
			return nil, nil, mErr
		}
		if ok {
			matched = append(matched, t)
		} else {
			rest = append(rest, t)
		}
	}

	return matched, rest, nil
}

// Snapshot is a point-in-time, read-only view of the space used only for
// metrics (the daemon's tuple-count poller) — never part of the wire
// protocol.
type Snapshot struct {
	// Count is the number of tuples currently stored.
	Count int
	// ArityHistogram maps arity to the number of stored tuples with that arity.
	ArityHistogram map[int]int
}

// Snapshot takes a consistent read-only snapshot of the space under lock.
func (s *Space) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := make(map[int]int)
	for _, t := range s.tuples {
		hist[t.Arity()]++
	}

	return Snapshot{Count: len(s.tuples), ArityHistogram: hist}
}

// WaitForChange blocks until the space's condition variable is next
// broadcast — either because a successful Out happened, or because the
// bounded liveness ticker fired. This is what lets a dispatcher blocked on a
// miss notice a closed connection within one tick instead of waiting
// forever. It returns the version observed immediately after waking;
// callers compare it against the version they last saw to tell a genuine
// insert from a liveness tick, but should re-run their match either way
// since a retry after a liveness tick is simply a no-op when nothing
// changed.
//
// WaitForChange must be called with no lock held; it acquires and releases
// the space's internal lock itself.
func (s *Space) WaitForChange(since uint64) (current uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version != since {
		return s.version
	}
	s.cond.Wait()

	return s.version
}

// Version returns the current mutation counter, incremented on every
// successful Out. Used by blocking-wait retry loops to detect whether a
// wakeup carries new information.
func (s *Space) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
