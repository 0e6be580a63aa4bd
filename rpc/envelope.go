package rpc

import "time"

// Content types used by the services this package talks to.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// Envelope is the data carried over the wire for both requests and replies.
type Envelope struct {
	Exchange      string
	RoutingKey    string
	CorrelationID string
	ReplyTo       string
	ContentType   string
	Body          []byte
}

// Return is the broker's notification that a mandatory publish could not be
// routed to any queue.
type Return struct {
	ReplyCode     uint16
	ReplyText     string
	Exchange      string
	RoutingKey    string
	CorrelationID string
	ReplyTo       string
}

// Request describes a single call.
type Request struct {
	Exchange    string
	RoutingKey  string
	ContentType string
	Body        []byte

	// Timeout bounds the wait for a reply. Zero means the dispatcher default.
	Timeout time.Duration
}

func (r Request) validate() error {
	if r.RoutingKey == "" {
		return ErrInvalidRequest
	}
	if r.Timeout < 0 {
		return ErrInvalidRequest
	}
	return nil
}

// Key identifies a pending call in the Registry.
type Key struct {
	ReplyTo       string
	CorrelationID string
}

func (k Key) valid() bool {
	return k.ReplyTo != "" && k.CorrelationID != ""
}
