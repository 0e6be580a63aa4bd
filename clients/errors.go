package clients

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the service did not answer before the deadline
	ErrTimeout = errors.New("clients: service did not reply in time")

	// ErrUnreachable is returned when no service instance is bound to the routing key
	ErrUnreachable = errors.New("clients: service unreachable")
)

// CommunicationError reports a reply that could not be interpreted
type CommunicationError struct {
	Service string
	Message string
	Err     error
}

func (e *CommunicationError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("clients: %s replied with an error: %s: %v", e.Service, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("clients: %s replied with an error: %s", e.Service, e.Message)
	default:
		return fmt.Sprintf("clients: malformed reply from %s: %v", e.Service, e.Err)
	}
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}
