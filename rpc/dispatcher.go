package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// DefaultTimeout bounds a call when neither the request nor the dispatcher sets one
const DefaultTimeout = 20 * time.Second

// Dispatcher performs blocking request/reply calls over a Broker
type Dispatcher struct {
	broker          Broker
	registry        *Registry
	detector        *UnroutableDetector
	metrics         MetricsCollector
	logger          *slog.Logger
	defaultTimeout  time.Duration
	teardownTimeout time.Duration
	newID           func() string

	stopReturns func()
	closeMu     sync.RWMutex
	closed      atomic.Bool
	inflight    sync.WaitGroup
}

// DispatcherOption configures the dispatcher
type DispatcherOption func(*DispatcherConfig)

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	Logger          *slog.Logger
	Metrics         MetricsCollector
	Registry        *Registry
	DefaultTimeout  time.Duration
	TeardownTimeout time.Duration
	IDGenerator     func() string
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics MetricsCollector) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Metrics = metrics
	}
}

// WithRegistry shares an existing registry, mostly useful in tests
func WithRegistry(registry *Registry) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Registry = registry
	}
}

// WithDefaultTimeout sets the timeout used by requests that do not set one
func WithDefaultTimeout(timeout time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.DefaultTimeout = timeout
	}
}

// WithTeardownTimeout bounds the reply queue deletion after a call
func WithTeardownTimeout(timeout time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.TeardownTimeout = timeout
	}
}

// WithIDGenerator replaces the correlation id generator
func WithIDGenerator(gen func() string) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.IDGenerator = gen
	}
}

// NewDispatcher creates a dispatcher and registers its unroutable detector
// with broker
func NewDispatcher(broker Broker, opts ...DispatcherOption) (*Dispatcher, error) {
	if broker == nil {
		return nil, ErrNilBroker
	}

	config := &DispatcherConfig{
		Logger:          slog.Default(),
		Metrics:         &NoOpMetricsCollector{},
		DefaultTimeout:  DefaultTimeout,
		TeardownTimeout: 5 * time.Second,
		IDGenerator:     func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("default timeout must be positive, got %v", config.DefaultTimeout)
	}
	if config.Registry == nil {
		config.Registry = NewRegistry(config.Logger)
	}

	d := &Dispatcher{
		broker:          broker,
		registry:        config.Registry,
		metrics:         config.Metrics,
		logger:          config.Logger,
		defaultTimeout:  config.DefaultTimeout,
		teardownTimeout: config.TeardownTimeout,
		newID:           config.IDGenerator,
	}
	d.detector = NewUnroutableDetector(d.registry, d.metrics, d.logger)
	d.stopReturns = broker.NotifyReturn(func(ret Return) {
		d.detector.HandleReturn(ret)
	})

	return d, nil
}

// Call publishes req and blocks until a reply, a broker return, the timeout
// or a transport failure. Timeout and Unroutable are reported through the
// outcome with a nil error; a transport failure sets both.
func (d *Dispatcher) Call(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	outcome, err := d.call(ctx, req)
	d.metrics.RecordCall(outcome.Kind, time.Since(start))
	return outcome, err
}

// CallAsync runs Call on its own goroutine. listener, if not nil, receives
// the outcome exactly once, after the returned future completes.
func (d *Dispatcher) CallAsync(ctx context.Context, req Request, listener Listener) *Future {
	future := newFuture()
	go func() {
		outcome, err := d.Call(ctx, req)
		future.complete(outcome, err)
		if listener != nil {
			listener(outcome)
		}
	}()
	return future
}

// Publish sends env without waiting for a reply and without the mandatory flag
func (d *Dispatcher) Publish(ctx context.Context, env Envelope) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	if env.RoutingKey == "" {
		return fmt.Errorf("%w: routing key is required", ErrInvalidRequest)
	}
	return d.broker.Publish(ctx, env, false)
}

func (d *Dispatcher) call(ctx context.Context, req Request) (Outcome, error) {
	if err := req.validate(); err != nil {
		return failure(fmt.Errorf("%w: routing key %q, timeout %v", err, req.RoutingKey, req.Timeout))
	}

	d.closeMu.RLock()
	if d.closed.Load() {
		d.closeMu.RUnlock()
		return failure(ErrDispatcherClosed)
	}
	d.inflight.Add(1)
	d.closeMu.RUnlock()
	defer d.inflight.Done()

	timeout := req.Timeout
	if timeout == 0 {
		timeout = d.defaultTimeout
	}
	deadline := time.Now().Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	queue, err := d.broker.DeclareReplyQueue(waitCtx)
	if err != nil {
		if deadlineExceeded(waitCtx) {
			return d.timedOut(req, Key{}, timeout)
		}
		return failure(fmt.Errorf("declare reply queue: %w", err))
	}

	key := Key{ReplyTo: queue, CorrelationID: d.newID()}
	replies := make(chan Outcome, 1)

	var (
		sub        Subscription
		registered bool
	)
	defer func() {
		d.release(key, registered, sub)
	}()

	if err := d.registry.Register(key, deadline, func(o Outcome) { replies <- o }); err != nil {
		return failure(err)
	}
	registered = true
	if d.closed.Load() && d.registry.ForceRemove(key) {
		return failure(ErrDispatcherClosed)
	}

	matcher := NewReplyMatcher(key, d.registry, d.metrics, d.logger)
	sub, err = d.broker.Subscribe(waitCtx, queue, func(delivery Envelope) {
		matcher.HandleDelivery(delivery)
	})
	if err != nil {
		if deadlineExceeded(waitCtx) {
			if !d.registry.ForceRemove(key) {
				return settle(<-replies)
			}
			return d.timedOut(req, key, timeout)
		}
		return failure(fmt.Errorf("subscribe to reply queue %s: %w", queue, err))
	}

	env := Envelope{
		Exchange:      req.Exchange,
		RoutingKey:    req.RoutingKey,
		CorrelationID: key.CorrelationID,
		ReplyTo:       queue,
		ContentType:   req.ContentType,
		Body:          req.Body,
	}
	if err := d.broker.Publish(waitCtx, env, true); err != nil {
		if !d.registry.ForceRemove(key) {
			// the request got far enough to be returned or answered
			return settle(<-replies)
		}
		if deadlineExceeded(waitCtx) {
			return d.timedOut(req, key, timeout)
		}
		return failure(fmt.Errorf("publish to %s/%s: %w", req.Exchange, req.RoutingKey, err))
	}

	d.logger.Debug("request published",
		"exchange", req.Exchange,
		"routingKey", req.RoutingKey,
		"queue", queue,
		"correlationId", key.CorrelationID,
		"timeout", timeout,
	)

	select {
	case outcome := <-replies:
		return settle(outcome)

	case lostErr := <-sub.Lost():
		if !d.registry.ForceRemove(key) {
			return settle(<-replies)
		}
		return failure(fmt.Errorf("%w: %w", ErrSubscriptionLost, lostErr))

	case <-waitCtx.Done():
		if !d.registry.ForceRemove(key) {
			return settle(<-replies)
		}
		if deadlineExceeded(waitCtx) {
			return d.timedOut(req, key, timeout)
		}
		return failure(fmt.Errorf("%w: %w", ErrCallCanceled, waitCtx.Err()))
	}
}

// release cancels the reply subscription, drops the registry entry and
// deletes the reply queue. It runs on every exit path of a call.
func (d *Dispatcher) release(key Key, registered bool, sub Subscription) {
	var result *multierror.Error

	if sub != nil {
		if err := sub.Cancel(); err != nil {
			result = multierror.Append(result, fmt.Errorf("cancel subscription: %w", err))
		}
	}

	if registered {
		d.registry.ForceRemove(key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.teardownTimeout)
	defer cancel()
	if err := d.broker.DeleteReplyQueue(ctx, key.ReplyTo); err != nil {
		result = multierror.Append(result, fmt.Errorf("delete reply queue: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		d.logger.Warn("failed to release reply resources",
			"queue", key.ReplyTo,
			"correlationId", key.CorrelationID,
			"error", err,
		)
	}
}

// Pending returns the number of calls waiting for a reply
func (d *Dispatcher) Pending() int {
	return d.registry.Len()
}

// Overdue returns the number of calls still pending more than the teardown
// timeout after their deadline. Every call is resolved at its deadline, so
// these are waiters that stopped making progress.
func (d *Dispatcher) Overdue() int {
	return len(d.registry.Expired(time.Now().Add(-d.teardownTimeout)))
}

// Registry returns the registry holding in-flight calls
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Close fails every in-flight call, waits for their cleanup and stops
// listening for returns. Calls made after Close fail immediately.
func (d *Dispatcher) Close() error {
	d.closeMu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.closeMu.Unlock()
		return nil
	}
	d.closeMu.Unlock()

	if n := d.registry.Clear(TransportFailure(ErrDispatcherClosed)); n > 0 {
		d.logger.Info("failed pending calls on close", "count", n)
	}
	d.inflight.Wait()

	if d.stopReturns != nil {
		d.stopReturns()
	}
	return nil
}

func (d *Dispatcher) timedOut(req Request, key Key, timeout time.Duration) (Outcome, error) {
	d.logger.Info("request timed out",
		"exchange", req.Exchange,
		"routingKey", req.RoutingKey,
		"correlationId", key.CorrelationID,
		"timeout", timeout,
	)
	return Timeout(), nil
}

// deadlineExceeded tells the call deadline apart from a cancelled caller
func deadlineExceeded(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func failure(err error) (Outcome, error) {
	return TransportFailure(err), err
}

func settle(outcome Outcome) (Outcome, error) {
	return outcome, outcome.Err
}
