package rpc

import "log/slog"

// UnroutableDetector resolves pending calls whose request the broker
// returned because no queue was bound to its routing key.
type UnroutableDetector struct {
	registry *Registry
	metrics  MetricsCollector
	logger   *slog.Logger
}

// NewUnroutableDetector creates a detector resolving entries in registry
func NewUnroutableDetector(registry *Registry, metrics MetricsCollector, logger *slog.Logger) *UnroutableDetector {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnroutableDetector{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleReturn resolves the call matching ret with an Unroutable outcome.
// Returns for calls that already resolved, timed out or were never
// registered are ignored. It reports whether a call was resolved.
func (d *UnroutableDetector) HandleReturn(ret Return) bool {
	if ret.ReplyTo == "" || ret.CorrelationID == "" {
		d.logger.Debug("ignoring returned message without reply metadata",
			"exchange", ret.Exchange,
			"routingKey", ret.RoutingKey,
		)
		return false
	}

	key := Key{ReplyTo: ret.ReplyTo, CorrelationID: ret.CorrelationID}
	resolved := d.registry.ResolveAndRemove(key, Unroutable())
	d.metrics.RecordReturn(resolved)

	if resolved {
		d.logger.Warn("request unroutable, no consumer bound",
			"exchange", ret.Exchange,
			"routingKey", ret.RoutingKey,
			"replyCode", ret.ReplyCode,
			"replyText", ret.ReplyText,
			"correlationId", ret.CorrelationID,
		)
	}
	return resolved
}
