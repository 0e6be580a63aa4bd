package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/mmate-rpc/internal/rabbitmq"
	"github.com/glimte/mmate-rpc/rpc"
)

// ResponderFunc answers one request. A nil body with a nil error sends an
// empty reply.
type ResponderFunc func(ctx context.Context, req rpc.Envelope) (contentType string, body []byte, err error)

// Responder serves requests sent to an exchange and routing key, replying on
// each request's reply queue. It stands in for a real service in tests and
// local development.
type Responder struct {
	session     *Session
	queue       string
	consumption *rabbitmq.Consumption
	logger      *slog.Logger
}

type responderConfig struct {
	exchange        rabbitmq.ExchangeDeclaration
	declareExchange bool
	queue           string
	prefetch        int
}

// ResponderOption configures a responder
type ResponderOption func(*responderConfig)

// WithExchangeType sets the type used when declaring the exchange
func WithExchangeType(kind string) ResponderOption {
	return func(c *responderConfig) {
		c.exchange.Type = kind
	}
}

// WithDurableExchange declares the exchange durable
func WithDurableExchange(durable bool) ResponderOption {
	return func(c *responderConfig) {
		c.exchange.Durable = durable
	}
}

// WithoutExchangeDeclare uses an exchange that already exists
func WithoutExchangeDeclare() ResponderOption {
	return func(c *responderConfig) {
		c.declareExchange = false
	}
}

// WithQueueName consumes from a named queue instead of a server-named one
func WithQueueName(name string) ResponderOption {
	return func(c *responderConfig) {
		c.queue = name
	}
}

// WithResponderPrefetch limits unacknowledged requests in flight
func WithResponderPrefetch(n int) ResponderOption {
	return func(c *responderConfig) {
		c.prefetch = n
	}
}

// Respond declares the exchange, binds a queue to routingKey and starts
// answering requests with fn
func (s *Session) Respond(ctx context.Context, exchange, routingKey string, fn ResponderFunc, options ...ResponderOption) (*Responder, error) {
	cfg := &responderConfig{
		exchange:        rabbitmq.ExchangeDeclaration{Name: exchange, Type: "topic", Durable: true},
		declareExchange: exchange != "",
		prefetch:        10,
	}
	for _, opt := range options {
		opt(cfg)
	}

	if cfg.declareExchange {
		if err := s.topology.DeclareExchange(ctx, cfg.exchange); err != nil {
			return nil, err
		}
	}

	queueDecl, binding := rabbitmq.ServiceQueue(cfg.exchange, cfg.queue, routingKey)
	q, err := s.topology.DeclareQueue(ctx, queueDecl)
	if err != nil {
		return nil, err
	}
	if exchange != "" {
		binding.Queue = q.Name
		if err := s.topology.BindQueue(ctx, binding); err != nil {
			return nil, err
		}
	}

	r := &Responder{
		session: s,
		queue:   q.Name,
		logger:  s.logger.With("exchange", exchange, "routingKey", routingKey, "queue", q.Name),
	}

	consumer := rabbitmq.NewConsumer(s.manager,
		rabbitmq.WithPrefetchCount(cfg.prefetch),
		rabbitmq.WithConsumerTagPrefix("mmate-rpc-responder"),
		rabbitmq.WithConsumerLogger(s.logger),
	)
	r.consumption, err = consumer.Subscribe(ctx, q.Name, func(ctx context.Context, d amqp.Delivery) error {
		return r.answer(ctx, fn, envelopeFromDelivery(d))
	})
	if err != nil {
		return nil, err
	}

	if err := s.track(r); err != nil {
		_ = r.consumption.Cancel()
		return nil, err
	}

	r.logger.Info("responder started")
	return r, nil
}

func (r *Responder) answer(ctx context.Context, fn ResponderFunc, req rpc.Envelope) error {
	if req.ReplyTo == "" {
		r.logger.Debug("request without reply queue", "correlationId", req.CorrelationID)
		return nil
	}

	contentType, body, err := fn(ctx, req)
	if err != nil {
		return fmt.Errorf("handle request %s: %w", req.CorrelationID, err)
	}

	return r.session.Publish(ctx, rpc.Envelope{
		RoutingKey:    req.ReplyTo,
		CorrelationID: req.CorrelationID,
		ContentType:   contentType,
		Body:          body,
	}, false)
}

// Queue returns the name of the queue the responder consumes
func (r *Responder) Queue() string {
	return r.queue
}

// Lost reports the responder's consumer ending without Close
func (r *Responder) Lost() <-chan error {
	return r.consumption.Lost()
}

// Close stops consuming
func (r *Responder) Close() error {
	r.session.untrack(r)
	return r.consumption.Cancel()
}
