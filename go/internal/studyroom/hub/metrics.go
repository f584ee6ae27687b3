package hub

import (
	"maps"
	"sync"
	"time"
)

// MetricsCollector records hub activity.
type MetricsCollector interface {
	RecordJob(name string, success bool, duration time.Duration)
	RecordRejected(eventType string)
	RecordDropped(reason string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordJob(name string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordRejected(eventType string)                             {}
func (n *NoOpMetricsCollector) RecordDropped(reason string)                                 {}

// CounterMetrics keeps in-process counters that the stats endpoint reports.
type CounterMetrics struct {
	mu       sync.Mutex
	jobs     map[string]int64
	failures map[string]int64
	rejected map[string]int64
	dropped  map[string]int64
	slowest  time.Duration
}

// NewCounterMetrics creates empty counters.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{
		jobs:     make(map[string]int64),
		failures: make(map[string]int64),
		rejected: make(map[string]int64),
		dropped:  make(map[string]int64),
	}
}

func (m *CounterMetrics) RecordJob(name string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name]++
	if !success {
		m.failures[name]++
	}
	if duration > m.slowest {
		m.slowest = duration
	}
}

func (m *CounterMetrics) RecordRejected(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[eventType]++
}

func (m *CounterMetrics) RecordDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Jobs      map[string]int64 `json:"jobs"`
	Failures  map[string]int64 `json:"failures"`
	Rejected  map[string]int64 `json:"rejected"`
	Dropped   map[string]int64 `json:"dropped"`
	SlowestMs int64            `json:"slowest_ms"`
}

// Snapshot copies the counters.
func (m *CounterMetrics) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Jobs:      maps.Clone(m.jobs),
		Failures:  maps.Clone(m.failures),
		Rejected:  maps.Clone(m.rejected),
		Dropped:   maps.Clone(m.dropped),
		SlowestMs: m.slowest.Milliseconds(),
	}
}

