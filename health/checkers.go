package health

import (
	"context"
	"fmt"
	"time"
)

// Session is the part of a broker session the session checker needs.
// *transports/rabbitmq.Session implements it.
type Session interface {
	IsConnected() bool
	PoolSize() int
	Ping(ctx context.Context) error
}

// SessionChecker checks the broker connection and the channel pool
type SessionChecker struct {
	session Session
}

// NewSessionChecker creates a session checker
func NewSessionChecker(session Session) *SessionChecker {
	return &SessionChecker{session: session}
}

func (c *SessionChecker) Name() string {
	return "rabbitmq"
}

func (c *SessionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	connected := c.session.IsConnected()
	result.Details["connection_open"] = connected
	result.Details["pool_size"] = c.session.PoolSize()

	if !connected {
		result.Status = StatusUnhealthy
		result.Message = "Connection is closed"
		result.Duration = time.Since(start)
		return result
	}

	if err := c.session.Ping(ctx); err != nil {
		result.Status = StatusDegraded
		result.Message = "Broker probe failed"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "Connection is healthy"
	}

	result.Duration = time.Since(start)
	result.Details["response_time_ms"] = result.Duration.Milliseconds()
	return result
}

// PendingCounter reports calls waiting for a reply. *rpc.Dispatcher
// implements it.
type PendingCounter interface {
	Pending() int
	Overdue() int
}

// DispatcherChecker reports degraded once more than threshold calls are
// waiting for replies or any call outlived its deadline
type DispatcherChecker struct {
	dispatcher PendingCounter
	threshold  int
}

// NewDispatcherChecker creates a dispatcher checker. A threshold below one
// disables the degraded state.
func NewDispatcherChecker(dispatcher PendingCounter, threshold int) *DispatcherChecker {
	return &DispatcherChecker{dispatcher: dispatcher, threshold: threshold}
}

func (c *DispatcherChecker) Name() string {
	return "dispatcher"
}

func (c *DispatcherChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	pending := c.dispatcher.Pending()
	overdue := c.dispatcher.Overdue()

	result := CheckResult{
		Name:      c.Name(),
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("%d calls pending", pending),
		Timestamp: start,
		Details: map[string]interface{}{
			"pending":   pending,
			"overdue":   overdue,
			"threshold": c.threshold,
		},
	}
	switch {
	case overdue > 0:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d calls past their deadline", overdue)
	case c.threshold > 0 && pending > c.threshold:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("High pending call count: %d", pending)
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, map[string]interface{}, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, map[string]interface{}, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	status, message, details, err := c.checker(ctx)

	result.Status = status
	result.Message = message
	if details != nil {
		result.Details = details
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}
