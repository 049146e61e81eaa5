package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the status written by the handler so the access
// line can report it. SSE handlers flush the header early, so for streams
// the recorded status is the 200 sent before the first event.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logger emits one slog line per request after the handler returns. For
// task streams that is when the client disconnects, so duration_ms there
// measures how long the stream was held open, not time to first byte.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
