package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ReturnHandler receives messages the broker could not route
type ReturnHandler func(amqp.Return)

// Publisher publishes on a single dedicated channel so that basic.return
// frames for mandatory messages reach the registered return handlers. The
// channel is reopened lazily after the server closes it.
type Publisher struct {
	manager        *ConnectionManager
	confirmTimeout time.Duration
	confirms       bool
	logger         *slog.Logger

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool

	handlersMu sync.RWMutex
	handlers   map[uint64]ReturnHandler
	nextID     uint64

	wg sync.WaitGroup
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmTimeout bounds the wait for a publisher confirm
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithConfirmMode enables or disables publisher confirms
func WithConfirmMode(enabled bool) PublisherOption {
	return func(p *Publisher) {
		p.confirms = enabled
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher on manager's connection
func NewPublisher(manager *ConnectionManager, options ...PublisherOption) *Publisher {
	p := &Publisher{
		manager:        manager,
		confirmTimeout: 5 * time.Second,
		confirms:       true,
		logger:         slog.Default(),
		handlers:       make(map[uint64]ReturnHandler),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends msg. With confirms enabled it waits until the broker has
// taken responsibility for the message; a returned mandatory message is still
// acked, and its return is delivered to the handlers first.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, mandatory bool, msg amqp.Publishing) error {
	ch, err := p.channel()
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Mandatory: mandatory, Err: err, Timestamp: time.Now()}
	}

	if !p.confirms {
		if err := ch.PublishWithContext(ctx, exchange, routingKey, mandatory, false, msg); err != nil {
			return &PublishError{Exchange: exchange, RoutingKey: routingKey, Mandatory: mandatory, Err: err, Timestamp: time.Now()}
		}
		return nil
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, mandatory, false, msg)
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Mandatory: mandatory, Err: err, Timestamp: time.Now()}
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	acked, err := confirmation.WaitContext(confirmCtx)
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		err = ErrPublishTimeout
	case err == nil && !acked:
		err = ErrPublishNotConfirmed
	}
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Mandatory: mandatory, Err: err, Timestamp: time.Now()}
	}
	return nil
}

// NotifyReturn registers handler for returned messages. The returned function
// removes it.
func (p *Publisher) NotifyReturn(handler ReturnHandler) (cancel func()) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	p.nextID++
	id := p.nextID
	p.handlers[id] = handler

	return func() {
		p.handlersMu.Lock()
		defer p.handlersMu.Unlock()
		delete(p.handlers, id)
	}
}

// channel returns the publishing channel, opening it if needed
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.manager.OpenChannel()
	if err != nil {
		return nil, err
	}
	if p.confirms {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to enable confirms: %w", err)
		}
	}

	returns := ch.NotifyReturn(make(chan amqp.Return, 64))
	p.wg.Add(1)
	go p.dispatchReturns(returns)

	p.ch = ch
	p.logger.Debug("opened publishing channel", "confirms", p.confirms)
	return ch, nil
}

// dispatchReturns fans returns out until the channel closes
func (p *Publisher) dispatchReturns(returns <-chan amqp.Return) {
	defer p.wg.Done()

	for ret := range returns {
		p.handlersMu.RLock()
		handlers := make([]ReturnHandler, 0, len(p.handlers))
		for _, h := range p.handlers {
			handlers = append(handlers, h)
		}
		p.handlersMu.RUnlock()

		p.logger.Debug("message returned",
			"exchange", ret.Exchange,
			"routingKey", ret.RoutingKey,
			"replyCode", ret.ReplyCode,
			"replyText", ret.ReplyText,
			"correlationId", ret.CorrelationId,
		)
		for _, h := range handlers {
			h(ret)
		}
	}
}

// OnConnected implements ConnectionStateListener
func (p *Publisher) OnConnected() {}

// OnDisconnected drops the channel so the next publish reopens it
func (p *Publisher) OnDisconnected(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch = nil
}

// OnReconnecting implements ConnectionStateListener
func (p *Publisher) OnReconnecting(attempt int) {}

// Close closes the publishing channel and waits for return dispatch to stop
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	ch := p.ch
	p.ch = nil
	p.mu.Unlock()

	var err error
	if ch != nil && !ch.IsClosed() {
		err = ch.Close()
	}
	p.wg.Wait()
	return err
}
