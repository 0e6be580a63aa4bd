package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/mmate-rpc/internal/rabbitmq"
	"github.com/glimte/mmate-rpc/rpc"
)

// Session is an open connection to RabbitMQ usable as an rpc.Broker
type Session struct {
	manager   *rabbitmq.ConnectionManager
	pool      *rabbitmq.ChannelPool
	publisher *rabbitmq.Publisher
	replies   *rabbitmq.Consumer
	topology  *rabbitmq.TopologyManager
	logger    *slog.Logger

	mu         sync.Mutex
	responders []*Responder
	closed     bool
}

var _ rpc.Broker = (*Session)(nil)

// SessionConfig holds configuration for the session
type SessionConfig struct {
	ConnectionOptions []rabbitmq.ConnectionOption
	PoolOptions       []rabbitmq.ChannelPoolOption
	PublisherOptions  []rabbitmq.PublisherOption
	Logger            *slog.Logger
}

// SessionOption configures the session
type SessionOption func(*SessionConfig)

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPoolOptions sets channel pool options
func WithPoolOptions(opts ...rabbitmq.ChannelPoolOption) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.PoolOptions = append(cfg.PoolOptions, opts...)
	}
}

// WithPublisherOptions sets publisher options
func WithPublisherOptions(opts ...rabbitmq.PublisherOption) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, opts...)
	}
}

// WithLogger sets the logger used by the session and everything it creates
func WithLogger(logger *slog.Logger) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.Logger = logger
	}
}

// Open connects to url and prepares the channel pool, the returning
// publisher and the reply consumer
func Open(ctx context.Context, url string, options ...SessionOption) (*Session, error) {
	cfg := &SessionConfig{Logger: slog.Default()}
	for _, opt := range options {
		opt(cfg)
	}
	logger := cfg.Logger

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(logger)}, cfg.ConnectionOptions...)
	manager := rabbitmq.NewConnectionManager(url, connOpts...)
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	poolOpts := append([]rabbitmq.ChannelPoolOption{rabbitmq.WithChannelLogger(logger)}, cfg.PoolOptions...)
	pool, err := rabbitmq.NewChannelPool(manager, poolOpts...)
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("failed to create channel pool: %w", err)
	}

	pubOpts := append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(logger)}, cfg.PublisherOptions...)
	publisher := rabbitmq.NewPublisher(manager, pubOpts...)
	manager.AddStateListener(publisher)

	replies := rabbitmq.NewConsumer(manager,
		rabbitmq.WithAutoAck(true),
		rabbitmq.WithExclusive(true),
		rabbitmq.WithPrefetchCount(0),
		rabbitmq.WithConsumerTagPrefix("mmate-rpc-reply"),
		rabbitmq.WithConsumerLogger(logger),
	)

	return &Session{
		manager:   manager,
		pool:      pool,
		publisher: publisher,
		replies:   replies,
		topology:  rabbitmq.NewTopologyManager(pool),
		logger:    logger,
	}, nil
}

// DeclareReplyQueue implements rpc.Broker
func (s *Session) DeclareReplyQueue(ctx context.Context) (string, error) {
	return s.topology.DeclareReplyQueue(ctx)
}

// DeleteReplyQueue implements rpc.Broker
func (s *Session) DeleteReplyQueue(ctx context.Context, queue string) error {
	return s.topology.DeleteReplyQueue(ctx, queue)
}

// Subscribe implements rpc.Broker
func (s *Session) Subscribe(ctx context.Context, queue string, handler func(rpc.Envelope)) (rpc.Subscription, error) {
	cons, err := s.replies.Subscribe(ctx, queue, func(_ context.Context, d amqp.Delivery) error {
		handler(envelopeFromDelivery(d))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cons, nil
}

// Publish implements rpc.Broker
func (s *Session) Publish(ctx context.Context, env rpc.Envelope, mandatory bool) error {
	return s.publisher.Publish(ctx, env.Exchange, env.RoutingKey, mandatory, publishingFromEnvelope(env))
}

// NotifyReturn implements rpc.Broker
func (s *Session) NotifyReturn(handler func(rpc.Return)) (cancel func()) {
	return s.publisher.NotifyReturn(func(r amqp.Return) {
		handler(returnFromAMQP(r))
	})
}

// Topology exposes exchange and queue management
func (s *Session) Topology() *rabbitmq.TopologyManager {
	return s.topology
}

// IsConnected reports whether the connection is up
func (s *Session) IsConnected() bool {
	return s.manager.IsConnected()
}

// PoolSize returns the number of channels held by the pool
func (s *Session) PoolSize() int {
	return s.pool.Size()
}

// Ping borrows a pooled channel and passively declares amq.direct, which
// exists on every broker
func (s *Session) Ping(ctx context.Context) error {
	return s.pool.Execute(ctx, func(ch *amqp.Channel) error {
		return ch.ExchangeDeclarePassive("amq.direct", amqp.ExchangeDirect, true, false, false, false, nil)
	})
}

// AddStateListener forwards connection state changes to listener
func (s *Session) AddStateListener(listener rabbitmq.ConnectionStateListener) {
	s.manager.AddStateListener(listener)
}

// Close stops responders and reply consumers, then closes the publisher, the
// pool and the connection
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	responders := s.responders
	s.responders = nil
	s.mu.Unlock()

	var result *multierror.Error
	for _, r := range responders {
		if err := r.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.replies.CancelAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.publisher.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.pool.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close channel pool: %w", err))
	}
	if err := s.manager.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close connection: %w", err))
	}
	return result.ErrorOrNil()
}

func (s *Session) track(r *Responder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return rabbitmq.ErrConnectionClosed
	}
	s.responders = append(s.responders, r)
	return nil
}

func (s *Session) untrack(r *Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.responders {
		if existing == r {
			s.responders = append(s.responders[:i], s.responders[i+1:]...)
			return
		}
	}
}

func envelopeFromDelivery(d amqp.Delivery) rpc.Envelope {
	return rpc.Envelope{
		Exchange:      d.Exchange,
		RoutingKey:    d.RoutingKey,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		ContentType:   d.ContentType,
		Body:          d.Body,
	}
}

func publishingFromEnvelope(env rpc.Envelope) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   env.ContentType,
		CorrelationId: env.CorrelationID,
		ReplyTo:       env.ReplyTo,
		DeliveryMode:  amqp.Transient,
		Timestamp:     time.Now(),
		Body:          env.Body,
	}
}

func returnFromAMQP(r amqp.Return) rpc.Return {
	return rpc.Return{
		ReplyCode:     r.ReplyCode,
		ReplyText:     r.ReplyText,
		Exchange:      r.Exchange,
		RoutingKey:    r.RoutingKey,
		CorrelationID: r.CorrelationId,
		ReplyTo:       r.ReplyTo,
	}
}
