package rpc

import "errors"

var (
	// ErrInvalidRequest is returned when a request lacks a routing key or has a negative timeout
	ErrInvalidRequest = errors.New("rpc: invalid request")

	// ErrInvalidKey is returned when a registry key has an empty reply queue or correlation id
	ErrInvalidKey = errors.New("rpc: invalid registry key")

	// ErrDuplicateKey is returned when a key already holds a live pending call
	ErrDuplicateKey = errors.New("rpc: duplicate pending call")

	// ErrDispatcherClosed is returned by calls made after Close
	ErrDispatcherClosed = errors.New("rpc: dispatcher closed")

	// ErrSubscriptionLost is reported when the reply subscription ends before a reply arrived
	ErrSubscriptionLost = errors.New("rpc: reply subscription lost")

	// ErrNilBroker is returned when a dispatcher is built without a broker
	ErrNilBroker = errors.New("rpc: broker is required")

	// ErrCallCanceled is reported when the caller's context is canceled mid-call
	ErrCallCanceled = errors.New("rpc: call canceled")
)
