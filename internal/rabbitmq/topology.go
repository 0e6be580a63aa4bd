package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TopologyManager declares and removes exchanges, queues and bindings
type TopologyManager struct {
	pool *ChannelPool
}

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared. An empty Name asks the
// server to generate one.
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// NewTopologyManager creates a new topology manager
func NewTopologyManager(pool *ChannelPool) *TopologyManager {
	return &TopologyManager{pool: pool}
}

// ReplyQueue is the declaration used for per-call reply queues: server named,
// transient, exclusive to this connection and removed with its last consumer
func ReplyQueue() QueueDeclaration {
	return QueueDeclaration{
		Durable:    false,
		AutoDelete: true,
		Exclusive:  true,
	}
}

// DeclareReplyQueue declares a fresh reply queue and returns its name
func (tm *TopologyManager) DeclareReplyQueue(ctx context.Context) (string, error) {
	q, err := tm.DeclareQueue(ctx, ReplyQueue())
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

// DeleteReplyQueue deletes a reply queue. A queue the server already removed
// is not an error.
func (tm *TopologyManager) DeleteReplyQueue(ctx context.Context, name string) error {
	err := tm.pool.Execute(ctx, func(ch *amqp.Channel) error {
		_, err := ch.QueueDelete(name, false, false, false)
		return err
	})
	if err == nil || IsNotFound(err) {
		return nil
	}
	return tm.topologyError("queue", name, "delete", err)
}

// DeclareExchange declares a single exchange
func (tm *TopologyManager) DeclareExchange(ctx context.Context, exchange ExchangeDeclaration) error {
	err := tm.pool.Execute(ctx, func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(
			exchange.Name,
			exchange.Type,
			exchange.Durable,
			exchange.AutoDelete,
			exchange.Internal,
			false, // no-wait
			exchange.Arguments,
		)
	})
	if err != nil {
		return tm.topologyError("exchange", exchange.Name, "declare", err)
	}
	return nil
}

// DeclareQueue declares a single queue
func (tm *TopologyManager) DeclareQueue(ctx context.Context, queue QueueDeclaration) (amqp.Queue, error) {
	var q amqp.Queue
	err := tm.pool.Execute(ctx, func(ch *amqp.Channel) error {
		var err error
		q, err = ch.QueueDeclare(
			queue.Name,
			queue.Durable,
			queue.AutoDelete,
			queue.Exclusive,
			false, // no-wait
			queue.Arguments,
		)
		return err
	})
	if err != nil {
		return amqp.Queue{}, tm.topologyError("queue", queue.Name, "declare", err)
	}
	return q, nil
}

// BindQueue creates a queue binding
func (tm *TopologyManager) BindQueue(ctx context.Context, binding Binding) error {
	err := tm.pool.Execute(ctx, func(ch *amqp.Channel) error {
		return ch.QueueBind(binding.Queue, binding.RoutingKey, binding.Exchange, false, binding.Arguments)
	})
	if err != nil {
		return tm.topologyError("binding", fmt.Sprintf("%s->%s[%s]", binding.Exchange, binding.Queue, binding.RoutingKey), "declare", err)
	}
	return nil
}

// InspectQueue returns the server's view of a queue
func (tm *TopologyManager) InspectQueue(ctx context.Context, name string) (amqp.Queue, error) {
	var q amqp.Queue
	err := tm.pool.Execute(ctx, func(ch *amqp.Channel) error {
		var err error
		q, err = ch.QueueDeclarePassive(name, false, false, false, false, nil)
		return err
	})
	return q, err
}

func (tm *TopologyManager) topologyError(component, name, op string, err error) error {
	return &TopologyError{
		Component: component,
		Name:      name,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// ServiceQueue builds the declarations a service needs to receive requests
// sent to exchange with routingKey on queue
func ServiceQueue(exchange ExchangeDeclaration, queue, routingKey string) (QueueDeclaration, Binding) {
	return QueueDeclaration{
			Name:       queue,
			Durable:    false,
			AutoDelete: true,
		}, Binding{
			Queue:      queue,
			Exchange:   exchange.Name,
			RoutingKey: routingKey,
		}
}

// IsNotFound reports whether err is the server's NOT_FOUND channel exception
func IsNotFound(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound
}
