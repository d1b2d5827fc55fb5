package server

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// LoggingMiddleware logs every request handled on the WebSocket upgrade
// path once its handler returns: the remote address and the time spent in
// the handler. The upgrade handler runs the session to completion, so for
// an upgraded connection that duration spans the whole session. The
// outcome of the upgrade is not logged here.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("connection handled",
				slog.String("remote_addr", r.RemoteAddr),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// RecoveryMiddleware recovers from panics raised while handling an upgrade
// request or servicing a session, logging the panic value and stack trace
// at Error level. Without this, a single malformed request that panics a
// handler would take down the entire daemon.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					logger.Error("panic recovered in connection handler",
						slog.String("remote_addr", r.RemoteAddr),
						slog.Any("panic", rec),
						slog.String("stack", string(buf[:n])),
					)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
