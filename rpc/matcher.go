package rpc

import (
	"log/slog"
	"sync"
)

// ReplyMatcher consumes one call's reply queue and resolves the call when a
// delivery with the expected correlation id arrives.
type ReplyMatcher struct {
	key      Key
	registry *Registry
	metrics  MetricsCollector
	logger   *slog.Logger

	once sync.Once
	done chan struct{}
}

// NewReplyMatcher creates a matcher for the call identified by key
func NewReplyMatcher(key Key, registry *Registry, metrics MetricsCollector, logger *slog.Logger) *ReplyMatcher {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplyMatcher{
		key:      key,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// HandleDelivery processes one delivery from the reply queue. It returns true
// if the delivery resolved the call.
func (m *ReplyMatcher) HandleDelivery(delivery Envelope) bool {
	select {
	case <-m.done:
		return false
	default:
	}

	if delivery.CorrelationID != m.key.CorrelationID {
		m.metrics.RecordMismatch()
		m.logger.Debug("discarding reply with foreign correlation id",
			"queue", m.key.ReplyTo,
			"expected", m.key.CorrelationID,
			"received", delivery.CorrelationID,
		)
		return false
	}

	resolved := m.registry.ResolveAndRemove(m.key, Success(delivery.ContentType, delivery.Body))
	m.once.Do(func() { close(m.done) })
	return resolved
}

// Done is closed once the matcher has seen its reply
func (m *ReplyMatcher) Done() <-chan struct{} {
	return m.done
}
