// Package server wires the tuple-space WebSocket listener and the separate
// administrative HTTP surface (metrics, health, readiness, session listing)
// on top of a shared tuplespace.Space.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dantte-lp/tuplespaced/internal/dispatch"
	"github.com/dantte-lp/tuplespaced/internal/metrics"
	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

// upgradeTimeout bounds how long the WebSocket handshake itself may take.
const upgradeTimeout = 10 * time.Second

// Server accepts WebSocket connections on a single path and hands each one
// to its own dispatch.Session for the connection's lifetime.
type Server struct {
	space    *tuplespace.Space
	logger   *slog.Logger
	metrics  *metrics.Collector
	ids      *dispatch.SessionIDAllocator
	registry *SessionRegistry
	upgrader websocket.Upgrader
	path     string
}

// New constructs a Server. path is the URL path clients connect to (e.g.
// "/ts").
func New(space *tuplespace.Space, collector *metrics.Collector, logger *slog.Logger, path string) *Server {
	return &Server{
		space:    space,
		logger:   logger.With(slog.String("component", "server")),
		metrics:  collector,
		ids:      dispatch.NewSessionIDAllocator(),
		registry: NewSessionRegistry(),
		upgrader: websocket.Upgrader{HandshakeTimeout: upgradeTimeout},
		path:     path,
	}
}

// Registry exposes the server's live session registry for admin reporting.
func (s *Server) Registry() *SessionRegistry { return s.registry }

// Handler returns the http.Handler to mount at s.path, wrapped with
// recovery and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpgrade)
	return RecoveryMiddleware(s.logger)(LoggingMiddleware(s.logger)(mux))
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id, err := s.ids.Allocate()
	if err != nil {
		s.logger.Error("session id allocation failed", slog.String("error", err.Error()))
		conn.Close()
		return
	}
	defer s.ids.Release(id)

	sess := dispatch.NewSession(id, conn, s.space, s.logger, dispatch.WithMetrics(s.metrics))

	s.registry.add(sess)
	defer s.registry.remove(id)

	if err := sess.Run(); err != nil {
		s.logger.Debug("session ended with error", slog.Uint64("session_id", id), slog.String("error", err.Error()))
	}
}

// AdminConfig configures the administrative HTTP surface.
type AdminConfig struct {
	MetricsPath  string
	SessionsPath string
}

// NewAdminHandler builds the admin HTTP surface: Prometheus metrics at
// cfg.MetricsPath, liveness/readiness probes at /healthz and /readyz, and an
// optional JSON session listing at cfg.SessionsPath for operational
// visibility. ready is consulted on every /readyz request so the daemon can
// report not-ready during startup or drain.
func NewAdminHandler(reg *prometheus.Registry, registry *SessionRegistry, cfg AdminConfig, ready func() bool) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if cfg.SessionsPath != "" {
		mux.HandleFunc(cfg.SessionsPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(registry.Snapshot()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}

	return mux
}
