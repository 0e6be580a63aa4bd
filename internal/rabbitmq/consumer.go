package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliveryHandler processes one delivery. When the consumer does not auto-ack,
// a nil error acks the delivery and a non-nil error rejects it.
type DeliveryHandler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer starts consumptions, each on its own channel so that cancelling
// one never disturbs another and a closed channel is attributed to exactly
// one consumption.
type Consumer struct {
	manager       *ConnectionManager
	prefetchCount int
	autoAck       bool
	exclusive     bool
	requeue       bool
	tagPrefix     string
	logger        *slog.Logger

	active sync.Map
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithAutoAck enables automatic acknowledgment
func WithAutoAck(autoAck bool) ConsumerOption {
	return func(c *Consumer) {
		c.autoAck = autoAck
	}
}

// WithExclusive sets exclusive consumer mode
func WithExclusive(exclusive bool) ConsumerOption {
	return func(c *Consumer) {
		c.exclusive = exclusive
	}
}

// WithRequeueOnError requeues rejected deliveries instead of dropping them
func WithRequeueOnError(requeue bool) ConsumerOption {
	return func(c *Consumer) {
		c.requeue = requeue
	}
}

// WithConsumerTagPrefix sets the prefix of generated consumer tags
func WithConsumerTagPrefix(prefix string) ConsumerOption {
	return func(c *Consumer) {
		c.tagPrefix = prefix
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a consumer on manager's connection
func NewConsumer(manager *ConnectionManager, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		manager:       manager,
		prefetchCount: 10,
		tagPrefix:     "mmate-rpc",
		logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Consumption is one running consumer
type Consumption struct {
	Queue       string
	ConsumerTag string

	ch       *amqp.Channel
	consumer *Consumer
	cancel   context.CancelFunc
	done     chan struct{}
	lost     chan error

	mu        sync.Mutex
	cancelled bool
}

// Subscribe starts consuming queue. Deliveries are handled one at a time on a
// dedicated goroutine.
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler DeliveryHandler) (*Consumption, error) {
	ch, err := c.manager.OpenChannel()
	if err != nil {
		return nil, c.subscribeError(queue, "", err)
	}

	if c.prefetchCount > 0 {
		if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
			_ = ch.Close()
			return nil, c.subscribeError(queue, "", fmt.Errorf("failed to set QoS: %w", err))
		}
	}

	tag := fmt.Sprintf("%s-%s", c.tagPrefix, uuid.New().String())
	deliveries, err := ch.Consume(queue, tag, c.autoAck, c.exclusive, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, c.subscribeError(queue, tag, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	consumeCtx, cancel := context.WithCancel(context.Background())
	cons := &Consumption{
		Queue:       queue,
		ConsumerTag: tag,
		ch:          ch,
		consumer:    c,
		cancel:      cancel,
		done:        make(chan struct{}),
		lost:        make(chan error, 1),
	}
	c.active.Store(tag, cons)

	go cons.run(consumeCtx, deliveries, closed, handler)

	c.logger.Debug("subscribed to queue",
		"queue", queue,
		"consumerTag", tag,
		"prefetchCount", c.prefetchCount,
	)
	return cons, nil
}

func (c *Consumer) subscribeError(queue, tag string, err error) error {
	return &ConsumerError{
		Queue:       queue,
		ConsumerTag: tag,
		Op:          "subscribe",
		Err:         err,
		Timestamp:   time.Now(),
	}
}

func (cons *Consumption) run(ctx context.Context, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error, handler DeliveryHandler) {
	c := cons.consumer
	defer func() {
		c.active.Delete(cons.ConsumerTag)
		close(cons.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				cons.reportLost(closed)
				return
			}
			cons.handle(ctx, delivery, handler)
		}
	}
}

func (cons *Consumption) handle(ctx context.Context, delivery amqp.Delivery, handler DeliveryHandler) {
	c := cons.consumer
	err := handler(ctx, delivery)
	if err != nil {
		c.logger.Error("failed to handle delivery",
			"error", err,
			"queue", cons.Queue,
			"correlationId", delivery.CorrelationId,
		)
	}
	if c.autoAck {
		return
	}

	if err != nil {
		if nackErr := delivery.Nack(false, c.requeue); nackErr != nil {
			c.logger.Error("failed to nack delivery", "error", nackErr, "originalError", err)
		}
		return
	}
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack delivery", "error", ackErr)
	}
}

// reportLost classifies the end of the delivery stream. A stream that ends
// without Cancel means the channel or the connection went away.
func (cons *Consumption) reportLost(closed <-chan *amqp.Error) {
	cons.mu.Lock()
	cancelled := cons.cancelled
	cons.mu.Unlock()
	if cancelled {
		return
	}

	var err error = ErrConsumerCancelled
	select {
	case amqpErr, ok := <-closed:
		if ok && amqpErr != nil {
			err = &ConsumerError{
				Queue:       cons.Queue,
				ConsumerTag: cons.ConsumerTag,
				Op:          "consume",
				Err:         amqpErr,
				Timestamp:   time.Now(),
			}
		} else {
			err = ErrChannelClosed
		}
	case <-time.After(100 * time.Millisecond):
	}

	cons.consumer.logger.Warn("delivery stream ended unexpectedly",
		"queue", cons.Queue,
		"consumerTag", cons.ConsumerTag,
		"error", err,
	)
	cons.lost <- err
}

// Cancel sends basic.cancel, waits for the delivery goroutine and closes
// the channel
func (cons *Consumption) Cancel() error {
	cons.mu.Lock()
	if cons.cancelled {
		cons.mu.Unlock()
		<-cons.done
		return nil
	}
	cons.cancelled = true
	cons.mu.Unlock()

	var err error
	if !cons.ch.IsClosed() {
		if cancelErr := cons.ch.Cancel(cons.ConsumerTag, false); cancelErr != nil {
			err = &ConsumerError{
				Queue:       cons.Queue,
				ConsumerTag: cons.ConsumerTag,
				Op:          "cancel",
				Err:         cancelErr,
				Timestamp:   time.Now(),
			}
		}
	}
	cons.cancel()
	<-cons.done

	if !cons.ch.IsClosed() {
		if closeErr := cons.ch.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// Lost receives an error when the consumption ends without Cancel
func (cons *Consumption) Lost() <-chan error {
	return cons.lost
}

// Done is closed when the delivery goroutine has stopped
func (cons *Consumption) Done() <-chan struct{} {
	return cons.done
}

// ActiveCount returns the number of running consumptions
func (c *Consumer) ActiveCount() int {
	n := 0
	c.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CancelAll cancels every running consumption
func (c *Consumer) CancelAll() error {
	var wg sync.WaitGroup
	c.active.Range(func(key, value any) bool {
		wg.Add(1)
		go func(cons *Consumption) {
			defer wg.Done()
			if err := cons.Cancel(); err != nil {
				c.logger.Error("failed to cancel consumer", "consumerTag", cons.ConsumerTag, "error", err)
			}
		}(value.(*Consumption))
		return true
	})
	wg.Wait()
	return nil
}
