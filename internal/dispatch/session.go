// Package dispatch implements the session dispatcher: one goroutine per
// accepted connection, decoding requests, invoking the shared
// tuplespace.Space, and encoding responses per the wire framing policy.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
	"github.com/dantte-lp/tuplespaced/internal/wire"
)

// closeSignal carries the reason a session's read loop stopped. closedCh is
// closed exactly once, so every goroutine watching it (the dispatch loop and
// any number of concurrently blocked handlers) observes the signal, instead
// of racing to drain a single buffered value.
type closeSignal struct {
	err error
}

// Conn is the subset of *websocket.Conn the dispatcher depends on. Defining
// it as an interface lets tests exercise Session against an in-memory fake
// instead of a real network connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Metrics is the subset of metrics the dispatcher reports through. Defined
// as an interface so internal/metrics.Collector can satisfy it without
// internal/dispatch importing internal/metrics directly, and so tests can
// supply a no-op implementation.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	WaiterStarted()
	WaiterFinished()
	OperationResult(op wire.OperationKind, result wire.Error)
	BlockingWaitDuration(op wire.OperationKind, d time.Duration)
}

// errProtocolViolation marks a session termination caused by a frame other
// than a text frame, or a close/control frame.
var errProtocolViolation = errors.New("dispatch: protocol violation")

// SessionOption configures optional Session behavior at construction time.
type SessionOption func(*Session)

// WithMetrics attaches a Metrics sink. Without this option, metrics calls
// are no-ops.
func WithMetrics(m Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// Session owns one accepted connection for its entire lifetime: a single
// goroutine runs Run, reading one request at a time, invoking the shared
// Space, and writing the response frames the wire protocol specifies.
type Session struct {
	id     uint64
	conn   Conn
	space  *tuplespace.Space
	logger *slog.Logger

	metrics Metrics

	requestsServed atomic.Uint64
	errorsTotal    atomic.Uint64
}

// NewSession constructs a Session over an already-accepted connection. id
// should come from a SessionIDAllocator.
func NewSession(id uint64, conn Conn, space *tuplespace.Space, logger *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		id:     id,
		conn:   conn,
		space:  space,
		logger: logger.With(slog.Uint64("session_id", id)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

// ID returns the session's opaque identifier.
func (s *Session) ID() uint64 { return s.id }

// RequestsServed returns the number of requests this session has completed.
func (s *Session) RequestsServed() uint64 { return s.requestsServed.Load() }

// ErrorsTotal returns the number of requests this session has completed
// with a non-success wire response (domain errors and InternalError alike).
func (s *Session) ErrorsTotal() uint64 { return s.errorsTotal.Load() }

// Run drives the per-session loop until the connection closes, a read
// fails, or a protocol violation occurs. It never returns an error for
// ordinary client-visible failures (those are reported on the wire); the
// returned error reflects only why the loop stopped, for logging.
func (s *Session) Run() error {
	s.logger.Info("session started")
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()
	defer s.conn.Close()

	reqCh := make(chan []byte, 1)
	closedCh := make(chan struct{})
	signal := &closeSignal{}

	go s.readLoop(reqCh, closedCh, signal)

	for {
		select {
		case data, ok := <-reqCh:
			if !ok {
				<-closedCh
				s.logger.Info("session ended", slog.String("reason", reasonString(signal.err)))
				return signal.err
			}
			s.handleRequest(data, closedCh)

		case <-closedCh:
			// The reader may have queued requests before it stopped; answer
			// them in order before ending the session.
			for data := range reqCh {
				s.handleRequest(data, closedCh)
			}
			s.logger.Info("session ended", slog.String("reason", reasonString(signal.err)))
			return signal.err
		}
	}
}

func reasonString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}

// readLoop is the session's sole reader: it owns every call to
// conn.ReadMessage for the session's lifetime, so a blocking handler can
// safely watch closedCh without ever racing a second concurrent reader.
// signal.err is written exactly once, before closedCh is closed, so every
// reader of closedCh observes a fully populated signal.
func (s *Session) readLoop(reqCh chan<- []byte, closedCh chan struct{}, signal *closeSignal) {
	defer close(reqCh)

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				signal.err = fmt.Errorf("read message: %w", err)
			}
			close(closedCh)
			return
		}
		if mt != websocket.TextMessage {
			signal.err = fmt.Errorf("%w: non-text frame (type %d)", errProtocolViolation, mt)
			close(closedCh)
			return
		}

		reqCh <- data
	}
}

// handleRequest decodes one request and dispatches it to the matching
// handler, writing the response frame(s). closedCh is threaded through so
// blocking handlers can abort promptly if the connection closes mid-wait.
func (s *Session) handleRequest(data []byte, closedCh <-chan struct{}) {
	op, err := wire.UnmarshalOperation(data)
	if err != nil {
		s.logger.Warn("malformed request", slog.String("error", err.Error()))
		s.respondError(wire.ErrorInternal)
		return
	}

	switch op.Kind {
	case wire.OpOut:
		s.handleOut(op.Tuple)
	case wire.OpInNonBl:
		s.handleNonBlockingRead(op.Kind, op.Tuple, s.space.Take)
	case wire.OpRdNonBl:
		s.handleNonBlockingRead(op.Kind, op.Tuple, s.space.Peek)
	case wire.OpInBl:
		s.handleBlockingRead(op.Kind, op.Tuple, s.space.Take, closedCh)
	case wire.OpRdBl:
		s.handleBlockingRead(op.Kind, op.Tuple, s.space.Peek, closedCh)
	}
}

func (s *Session) handleOut(t tuplespace.Tuple) {
	err := s.space.Out(t)
	wireErr := wire.ErrorFromDomain(err)
	s.respondError(wireErr)
	s.recordOutcome(wire.OpOut, wireErr)
}

type matchFunc func(tuplespace.Tuple) ([]tuplespace.Tuple, error)

func (s *Session) handleNonBlockingRead(kind wire.OperationKind, template tuplespace.Tuple, match matchFunc) {
	tuples, err := match(template)
	if err != nil {
		wireErr := wire.ErrorFromDomain(err)
		s.respondError(wireErr)
		s.recordOutcome(kind, wireErr)
		return
	}

	s.respondTupleList(tuples)
	s.recordOutcome(kind, wire.ErrorNone)
}

func (s *Session) handleBlockingRead(kind wire.OperationKind, template tuplespace.Tuple, match matchFunc, closedCh <-chan struct{}) {
	s.metrics.WaiterStarted()
	defer s.metrics.WaiterFinished()
	start := time.Now()

	version := s.space.Version()

	for {
		tuples, err := match(template)
		if err == nil {
			s.respondTupleList(tuples)
			s.recordOutcome(kind, wire.ErrorNone)
			s.metrics.BlockingWaitDuration(kind, time.Since(start))
			return
		}
		if !errors.Is(err, tuplespace.ErrNoMatchingTuple) {
			// Precondition errors (TupleOnlyData) never change across
			// retries; fail immediately rather than looping forever.
			wireErr := wire.ErrorFromDomain(err)
			s.respondError(wireErr)
			s.recordOutcome(kind, wireErr)
			return
		}

		select {
		case <-closedCh:
			// Connection is gone; no response frame is sent.
			return
		default:
		}

		version = s.space.WaitForChange(version)
	}
}

func (s *Session) respondTupleList(tuples []tuplespace.Tuple) {
	payload, err := wire.MarshalTupleList(tuples)
	if err != nil {
		s.logger.Error("encode tuple list", slog.String("error", err.Error()))
		s.respondError(wire.ErrorInternal)
		return
	}
	if writeErr := s.conn.WriteMessage(websocket.TextMessage, payload); writeErr != nil {
		s.logger.Debug("write payload frame failed", slog.String("error", writeErr.Error()))
		return
	}
	s.respondError(wire.ErrorNone)
}

func (s *Session) respondError(e wire.Error) {
	s.requestsServed.Add(1)
	if e != wire.ErrorNone {
		s.errorsTotal.Add(1)
	}

	frame, err := wire.MarshalError(e)
	if err != nil {
		s.logger.Error("encode error frame", slog.String("error", err.Error()))
		return
	}
	if writeErr := s.conn.WriteMessage(websocket.TextMessage, frame); writeErr != nil {
		s.logger.Debug("write error frame failed", slog.String("error", writeErr.Error()))
	}
}

func (s *Session) recordOutcome(kind wire.OperationKind, result wire.Error) {
	s.metrics.OperationResult(kind, result)
}

type noopMetrics struct{}

func (noopMetrics) SessionOpened()                                        {}
func (noopMetrics) SessionClosed()                                        {}
func (noopMetrics) WaiterStarted()                                        {}
func (noopMetrics) WaiterFinished()                                       {}
func (noopMetrics) OperationResult(wire.OperationKind, wire.Error)        {}
func (noopMetrics) BlockingWaitDuration(wire.OperationKind, time.Duration) {}
