package rpc

import (
	"sync/atomic"
	"time"
)

// MetricsCollector records dispatcher activity
type MetricsCollector interface {
	// RecordCall records a finished call
	RecordCall(kind OutcomeKind, duration time.Duration)

	// RecordReturn records a broker return; resolved is false when no
	// pending call matched it
	RecordReturn(resolved bool)

	// RecordMismatch records a reply discarded for a foreign correlation id
	RecordMismatch()
}

// NoOpMetricsCollector discards everything
type NoOpMetricsCollector struct{}

// RecordCall does nothing
func (n *NoOpMetricsCollector) RecordCall(kind OutcomeKind, duration time.Duration) {}

// RecordReturn does nothing
func (n *NoOpMetricsCollector) RecordReturn(resolved bool) {}

// RecordMismatch does nothing
func (n *NoOpMetricsCollector) RecordMismatch() {}

// MetricsSnapshot is a point-in-time copy of the collected counters
type MetricsSnapshot struct {
	Calls             int64
	Successes         int64
	Unroutable        int64
	Timeouts          int64
	TransportFailures int64
	Returns           int64
	StaleReturns      int64
	Mismatches        int64
	TotalLatency      time.Duration
	MaxLatency        time.Duration
}

// AverageLatency returns the mean call duration
func (s MetricsSnapshot) AverageLatency() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Calls)
}

// SimpleMetricsCollector keeps in-memory counters
type SimpleMetricsCollector struct {
	calls             atomic.Int64
	successes         atomic.Int64
	unroutable        atomic.Int64
	timeouts          atomic.Int64
	transportFailures atomic.Int64
	returns           atomic.Int64
	staleReturns      atomic.Int64
	mismatches        atomic.Int64
	totalLatency      atomic.Int64
	maxLatency        atomic.Int64
}

// NewSimpleMetricsCollector creates a collector with zeroed counters
func NewSimpleMetricsCollector() *SimpleMetricsCollector {
	return &SimpleMetricsCollector{}
}

// RecordCall implements MetricsCollector
func (c *SimpleMetricsCollector) RecordCall(kind OutcomeKind, duration time.Duration) {
	c.calls.Add(1)
	switch kind {
	case OutcomeSuccess:
		c.successes.Add(1)
	case OutcomeUnroutable:
		c.unroutable.Add(1)
	case OutcomeTimeout:
		c.timeouts.Add(1)
	case OutcomeTransportFailure:
		c.transportFailures.Add(1)
	}

	c.totalLatency.Add(int64(duration))
	for {
		current := c.maxLatency.Load()
		if int64(duration) <= current || c.maxLatency.CompareAndSwap(current, int64(duration)) {
			break
		}
	}
}

// RecordReturn implements MetricsCollector
func (c *SimpleMetricsCollector) RecordReturn(resolved bool) {
	c.returns.Add(1)
	if !resolved {
		c.staleReturns.Add(1)
	}
}

// RecordMismatch implements MetricsCollector
func (c *SimpleMetricsCollector) RecordMismatch() {
	c.mismatches.Add(1)
}

// Snapshot returns the current counters
func (c *SimpleMetricsCollector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Calls:             c.calls.Load(),
		Successes:         c.successes.Load(),
		Unroutable:        c.unroutable.Load(),
		Timeouts:          c.timeouts.Load(),
		TransportFailures: c.transportFailures.Load(),
		Returns:           c.returns.Load(),
		StaleReturns:      c.staleReturns.Load(),
		Mismatches:        c.mismatches.Load(),
		TotalLatency:      time.Duration(c.totalLatency.Load()),
		MaxLatency:        time.Duration(c.maxLatency.Load()),
	}
}
