package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/glimte/mmate-rpc/internal/reliability"
	"github.com/glimte/mmate-rpc/rpc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Caller performs a blocking call. *rpc.Dispatcher implements it.
type Caller interface {
	Call(ctx context.Context, req rpc.Request) (rpc.Outcome, error)
}

// Publisher sends a message without waiting for a reply. *rpc.Dispatcher
// implements it.
type Publisher interface {
	Publish(ctx context.Context, env rpc.Envelope) error
}

// Guard decides whether a call may run, typically a circuit breaker.
// *internal/reliability.CircuitBreaker implements it.
type Guard interface {
	Execute(ctx context.Context, fn func() error) error
}

// Option configures a client
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  *slog.Logger
	guard   Guard
}

// WithTimeout sets the per-call timeout. Zero uses the dispatcher default.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithGuard runs every call through guard
func WithGuard(guard Guard) Option {
	return func(o *options) {
		o.guard = guard
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ServiceDown reports whether err means the service did not answer at all
func ServiceDown(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable)
}

// exchange sends one request through the guard, if any, and returns the raw
// reply body
func exchange(ctx context.Context, caller Caller, service string, route Route, contentType string, body []byte, o options) ([]byte, error) {
	if o.guard == nil {
		return roundTrip(ctx, caller, service, route, contentType, body, o)
	}

	var reply []byte
	err := o.guard.Execute(ctx, func() error {
		var err error
		reply, err = roundTrip(ctx, caller, service, route, contentType, body, o)
		return err
	})
	if err != nil {
		if errors.Is(err, reliability.ErrCircuitOpen) {
			return nil, fmt.Errorf("call %s: %w", service, err)
		}
		return nil, err
	}
	return reply, nil
}

func roundTrip(ctx context.Context, caller Caller, service string, route Route, contentType string, body []byte, o options) ([]byte, error) {
	outcome, err := caller.Call(ctx, rpc.Request{
		Exchange:    route.Exchange,
		RoutingKey:  route.RoutingKey,
		ContentType: contentType,
		Body:        body,
		Timeout:     o.timeout,
	})

	switch outcome.Kind {
	case rpc.OutcomeSuccess:
		return outcome.Body, nil
	case rpc.OutcomeUnroutable:
		o.logger.Warn("service unreachable", "service", service, "exchange", route.Exchange, "routingKey", route.RoutingKey)
		return nil, fmt.Errorf("%w: %s (%s/%s)", ErrUnreachable, service, route.Exchange, route.RoutingKey)
	case rpc.OutcomeTimeout:
		o.logger.Warn("service timed out", "service", service, "exchange", route.Exchange, "routingKey", route.RoutingKey)
		return nil, fmt.Errorf("%w: %s (%s/%s)", ErrTimeout, service, route.Exchange, route.RoutingKey)
	default:
		if err == nil {
			err = outcome.Err
		}
		return nil, fmt.Errorf("call %s: %w", service, err)
	}
}

// callJSON marshals in, calls route and decodes the reply into out. See
// decode for errorContainer.
func callJSON(ctx context.Context, caller Caller, service string, route Route, in, out any, errorContainer bool, o options) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", service, err)
	}
	reply, err := exchange(ctx, caller, service, route, rpc.ContentTypeJSON, body, o)
	if err != nil {
		return err
	}
	return decode(service, reply, out, errorContainer)
}

// callText sends text as a plain text request and decodes the JSON reply
func callText(ctx context.Context, caller Caller, service string, route Route, text string, out any, errorContainer bool, o options) error {
	reply, err := exchange(ctx, caller, service, route, rpc.ContentTypeText, []byte(text), o)
	if err != nil {
		return err
	}
	return decode(service, reply, out, errorContainer)
}

// decode unmarshals reply into out. With errorContainer set, a reply
// carrying an errorMessage is a service error whatever shape out has.
func decode(service string, reply []byte, out any, errorContainer bool) error {
	if errorContainer {
		var failure errorResponse
		if err := json.Unmarshal(reply, &failure); err == nil && failure.ErrorMessage != "" {
			return &CommunicationError{Service: service, Message: failure.ErrorMessage}
		}
	}

	if err := json.Unmarshal(reply, out); err != nil {
		return &CommunicationError{Service: service, Err: err}
	}
	return nil
}
