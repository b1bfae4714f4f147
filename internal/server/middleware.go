package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// slowRequestThreshold triggers a warning log for requests slower than this.
const slowRequestThreshold = 1 * time.Second

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	startTimeKey contextKey = "start_time"
)

// statusWriter records the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with request IDs, timing, logging, and metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()[:8]
		start := time.Now()

		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		ctx = context.WithValue(ctx, startTimeKey, start)
		r = r.WithContext(ctx)

		w.Header().Set("X-Request-ID", reqID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		s.metrics.Record(elapsed, sw.status >= 400)

		if s.debug {
			log.Printf("[server] %s %s %s -> %d (%.1fms)",
				reqID, r.Method, r.URL.Path, sw.status, float64(elapsed.Microseconds())/1000.0)
		}
		if elapsed > slowRequestThreshold {
			log.Printf("[server] slow request: %s %s %s took %.1fs",
				reqID, r.Method, r.URL.Path, elapsed.Seconds())
		}
	})
}

// requestID returns the request ID the middleware attached, if any.
func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// requestStart returns when the middleware saw the request begin.
func requestStart(r *http.Request) time.Time {
	if t, ok := r.Context().Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}
