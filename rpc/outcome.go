package rpc

import (
	"fmt"
	"net/http"
)

// OutcomeKind tags the variant held by an Outcome
type OutcomeKind int

const (
	// OutcomeSuccess means a reply with the expected correlation id arrived
	OutcomeSuccess OutcomeKind = iota + 1
	// OutcomeUnroutable means the broker returned the request because nothing was bound to it
	OutcomeUnroutable
	// OutcomeTimeout means neither a reply nor a return arrived before the deadline
	OutcomeTimeout
	// OutcomeTransportFailure means the broker connection or channel failed
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnroutable:
		return "unroutable"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the result of a call. Exactly one variant is set, identified by Kind.
type Outcome struct {
	Kind OutcomeKind

	// Status is a transport-level status: 200 for a reply, 500 for an
	// unroutable request. The reply payload may carry its own status.
	Status int

	ContentType string

	// Body is the reply payload, passed through unaltered. Empty for every
	// kind except OutcomeSuccess.
	Body []byte

	// Err is set for OutcomeTransportFailure.
	Err error
}

// Success builds a fulfilled outcome
func Success(contentType string, body []byte) Outcome {
	return Outcome{
		Kind:        OutcomeSuccess,
		Status:      http.StatusOK,
		ContentType: contentType,
		Body:        body,
	}
}

// Unroutable builds the synthetic outcome for a returned request
func Unroutable() Outcome {
	return Outcome{
		Kind:   OutcomeUnroutable,
		Status: http.StatusInternalServerError,
		Body:   []byte{},
	}
}

// Timeout builds the outcome for an expired call
func Timeout() Outcome {
	return Outcome{Kind: OutcomeTimeout}
}

// TransportFailure builds the outcome for a broker failure
func TransportFailure(err error) Outcome {
	return Outcome{Kind: OutcomeTransportFailure, Err: err}
}

// OK reports whether the call produced a reply
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return fmt.Sprintf("success (%d bytes)", len(o.Body))
	case OutcomeTransportFailure:
		return fmt.Sprintf("transport_failure: %v", o.Err)
	default:
		return o.Kind.String()
	}
}
