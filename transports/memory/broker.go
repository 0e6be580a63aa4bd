// Package memory provides an in-process rpc.Broker. It follows the routing
// rules the dispatcher relies on: the default exchange routes by queue name,
// named exchanges route through bindings, and mandatory messages nobody is
// bound to come back as returns.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/glimte/mmate-rpc/rpc"
)

// ErrClosed is returned by every operation after Close
var ErrClosed = errors.New("memory: broker closed")

// ErrQueueNotFound is returned when subscribing to an undeclared queue
var ErrQueueNotFound = errors.New("memory: queue not found")

// NoRouteCode mirrors the AMQP reply code for unroutable mandatory messages
const NoRouteCode = 312

// Handler receives messages published to a binding. It runs on its own
// goroutine for every message.
type Handler func(ctx context.Context, msg rpc.Envelope)

// ServeFunc builds the reply for a request. Returning a nil body with ok set
// to false leaves the request unanswered.
type ServeFunc func(req rpc.Envelope) (contentType string, body []byte, ok bool)

// Publication is a message accepted by Publish together with its mandatory flag
type Publication struct {
	rpc.Envelope
	Mandatory bool
}

type binding struct {
	id      uint64
	handler Handler
}

type queue struct {
	name    string
	backlog []rpc.Envelope
	sub     *subscription
}

// Broker is an in-memory message bus
type Broker struct {
	mu        sync.Mutex
	queues    map[string]*queue
	bindings  map[string]map[string][]binding
	returns   map[uint64]func(rpc.Return)
	published []Publication
	nextID    uint64
	closed    bool

	failPublish error
	failDeclare error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		queues:   make(map[string]*queue),
		bindings: make(map[string]map[string][]binding),
		returns:  make(map[uint64]func(rpc.Return)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Bind routes messages published to exchange with routingKey to handler.
// The returned function removes the binding.
func (b *Broker) Bind(exchange, routingKey string, handler Handler) (unbind func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.bindings[exchange] == nil {
		b.bindings[exchange] = make(map[string][]binding)
	}
	b.bindings[exchange][routingKey] = append(b.bindings[exchange][routingKey], binding{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		current := b.bindings[exchange][routingKey]
		for i, bd := range current {
			if bd.id == id {
				b.bindings[exchange][routingKey] = append(current[:i:i], current[i+1:]...)
				break
			}
		}
	}
}

// Serve binds a handler that answers each request on its reply queue with
// the request's correlation id.
func (b *Broker) Serve(exchange, routingKey string, fn ServeFunc) (unbind func()) {
	return b.Bind(exchange, routingKey, func(ctx context.Context, req rpc.Envelope) {
		if req.ReplyTo == "" {
			return
		}
		contentType, body, ok := fn(req)
		if !ok {
			return
		}
		_ = b.Publish(ctx, rpc.Envelope{
			RoutingKey:    req.ReplyTo,
			CorrelationID: req.CorrelationID,
			ContentType:   contentType,
			Body:          body,
		}, false)
	})
}

// DeclareReplyQueue implements rpc.Broker
func (b *Broker) DeclareReplyQueue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrClosed
	}
	if err := b.failDeclare; err != nil {
		b.failDeclare = nil
		return "", err
	}

	name := "amq.gen-" + uuid.New().String()
	b.queues[name] = &queue{name: name}
	return name, nil
}

// DeleteReplyQueue implements rpc.Broker. Deleting an unknown queue is a no-op.
func (b *Broker) DeleteReplyQueue(ctx context.Context, name string) error {
	b.mu.Lock()
	var sub *subscription
	if q, exists := b.queues[name]; exists {
		sub = q.sub
		delete(b.queues, name)
	}
	b.mu.Unlock()

	if sub != nil {
		sub.stop(nil)
	}
	return nil
}

// Subscribe implements rpc.Broker
func (b *Broker) Subscribe(ctx context.Context, name string, handler func(rpc.Envelope)) (rpc.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	q, exists := b.queues[name]
	if !exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	if q.sub != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("queue %s already has a consumer", name)
	}

	sub := newSubscription(b, q)
	q.sub = sub
	backlog := q.backlog
	q.backlog = nil
	b.mu.Unlock()

	sub.start(handler, backlog)
	return sub, nil
}

// Publish implements rpc.Broker
func (b *Broker) Publish(ctx context.Context, env rpc.Envelope, mandatory bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if err := b.failPublish; err != nil {
		b.failPublish = nil
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, Publication{Envelope: env, Mandatory: mandatory})

	// default exchange: routing key names the queue
	if env.Exchange == "" {
		q, exists := b.queues[env.RoutingKey]
		if exists {
			sub := q.sub
			if sub == nil {
				q.backlog = append(q.backlog, env)
			}
			b.mu.Unlock()
			if sub != nil {
				sub.deliver(env)
			}
			return nil
		}
	} else if bound := b.bindings[env.Exchange][env.RoutingKey]; len(bound) > 0 {
		handlers := make([]Handler, len(bound))
		for i, bd := range bound {
			handlers[i] = bd.handler
		}
		b.wg.Add(len(handlers))
		b.mu.Unlock()
		for _, h := range handlers {
			go func(h Handler) {
				defer b.wg.Done()
				h(b.ctx, env)
			}(h)
		}
		return nil
	}

	if !mandatory {
		b.mu.Unlock()
		return nil
	}

	handlers := make([]func(rpc.Return), 0, len(b.returns))
	for _, h := range b.returns {
		handlers = append(handlers, h)
	}
	b.wg.Add(1)
	b.mu.Unlock()

	ret := rpc.Return{
		ReplyCode:     NoRouteCode,
		ReplyText:     "NO_ROUTE",
		Exchange:      env.Exchange,
		RoutingKey:    env.RoutingKey,
		CorrelationID: env.CorrelationID,
		ReplyTo:       env.ReplyTo,
	}
	go func() {
		defer b.wg.Done()
		for _, h := range handlers {
			h(ret)
		}
	}()
	return nil
}

// NotifyReturn implements rpc.Broker
func (b *Broker) NotifyReturn(handler func(rpc.Return)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.returns[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.returns, id)
	}
}

// FailNextPublish makes the next Publish return err
func (b *Broker) FailNextPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPublish = err
}

// FailNextDeclare makes the next DeclareReplyQueue return err
func (b *Broker) FailNextDeclare(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDeclare = err
}

// DropSubscriptions ends every active subscription with err, as a closed
// channel would.
func (b *Broker) DropSubscriptions(err error) int {
	b.mu.Lock()
	var subs []*subscription
	for _, q := range b.queues {
		if q.sub != nil {
			subs = append(subs, q.sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop(err)
	}
	return len(subs)
}

// QueueCount returns the number of declared queues
func (b *Broker) QueueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

// SubscriberCount returns the number of active subscriptions
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queues {
		if q.sub != nil {
			n++
		}
	}
	return n
}

// ReturnListenerCount returns the number of registered return handlers
func (b *Broker) ReturnListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.returns)
}

// Published returns a copy of every message accepted by Publish
func (b *Broker) Published() []rpc.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]rpc.Envelope, len(b.published))
	for i, p := range b.published {
		out[i] = p.Envelope
	}
	return out
}

// Publications returns every message accepted by Publish with the flags it
// was published with
func (b *Broker) Publications() []Publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Publication, len(b.published))
	copy(out, b.published)
	return out
}

// Close stops every subscription and waits for running handlers
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*subscription
	for _, q := range b.queues {
		if q.sub != nil {
			subs = append(subs, q.sub)
		}
	}
	b.mu.Unlock()

	b.cancel()
	for _, sub := range subs {
		sub.stop(ErrClosed)
	}
	b.wg.Wait()
	return nil
}

func (b *Broker) detach(q *queue, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q.sub == sub {
		q.sub = nil
	}
}
