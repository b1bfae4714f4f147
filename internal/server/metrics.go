package server

import (
	"sync/atomic"
	"time"
)

// Metrics tracks request counters for the health endpoint. All fields are
// atomic; there is no global state and no lock.
type Metrics struct {
	requests     atomic.Int64
	errors       atomic.Int64
	totalTimeUs  atomic.Int64
	slowRequests atomic.Int64
	started      time.Time
}

// NewMetrics creates a metrics object with the uptime clock started.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

// Record accumulates one completed request.
func (m *Metrics) Record(d time.Duration, isError bool) {
	m.requests.Add(1)
	m.totalTimeUs.Add(d.Microseconds())
	if isError {
		m.errors.Add(1)
	}
	if d > slowRequestThreshold {
		m.slowRequests.Add(1)
	}
}

// Snapshot returns the current counters in a JSON-ready form.
func (m *Metrics) Snapshot() map[string]any {
	requests := m.requests.Load()
	avgMs := 0.0
	if requests > 0 {
		avgMs = float64(m.totalTimeUs.Load()) / float64(requests) / 1000.0
	}
	return map[string]any{
		"requests":        requests,
		"errors":          m.errors.Load(),
		"slow_requests":   m.slowRequests.Load(),
		"avg_response_ms": avgMs,
		"uptime_seconds":  time.Since(m.started).Seconds(),
	}
}
