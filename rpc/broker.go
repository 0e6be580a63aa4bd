package rpc

import "context"

// Broker is the session the dispatcher uses to reach the message bus.
// Implementations deliver replies and returns on their own goroutines.
type Broker interface {
	// DeclareReplyQueue creates a transient, exclusive, auto-delete queue
	// and returns its name.
	DeclareReplyQueue(ctx context.Context) (string, error)

	// DeleteReplyQueue removes a queue created by DeclareReplyQueue. Deleting
	// a queue that is already gone is not an error.
	DeleteReplyQueue(ctx context.Context, queue string) error

	// Subscribe starts consuming queue, calling handler for every delivery.
	Subscribe(ctx context.Context, queue string, handler func(Envelope)) (Subscription, error)

	// Publish sends env. With mandatory set the broker reports unroutable
	// messages through the handlers registered with NotifyReturn.
	Publish(ctx context.Context, env Envelope, mandatory bool) error

	// NotifyReturn registers handler for returned messages. The returned
	// function unregisters it.
	NotifyReturn(handler func(Return)) (cancel func())
}

// Subscription is an active consumer on a reply queue
type Subscription interface {
	// Cancel stops the consumer and waits for in-flight deliveries to finish.
	Cancel() error

	// Lost receives an error if the subscription ends without Cancel being
	// called, for example when the channel or connection closes.
	Lost() <-chan error
}
