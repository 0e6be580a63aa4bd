package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the position of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeListener is told about every transition. It runs on its own
// goroutine.
type StateChangeListener interface {
	OnStateChange(from, to State, reason string)
}

// CircuitBreaker rejects calls after a run of failures, then lets a limited
// number of probes through once the open period has passed
type CircuitBreaker struct {
	name        string
	maxFailures int
	minProbes   int
	maxProbes   int
	openFor     time.Duration
	isFailure   func(error) bool

	mu        sync.RWMutex
	state     State
	failures  int
	successes int
	probing   int
	openedAt  time.Time
	counters  Snapshot
	listeners []StateChangeListener
}

// CircuitBreakerOption configures the circuit breaker
type CircuitBreakerOption func(*CircuitBreaker)

// WithName names the breaker in errors, logs and snapshots
func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithFailureThreshold sets how many consecutive failures open the circuit
func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.maxFailures = threshold
	}
}

// WithSuccessThreshold sets how many successful probes close the circuit
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.minProbes = threshold
	}
}

// WithHalfOpenRequests caps the probes running at the same time
func WithHalfOpenRequests(requests int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.maxProbes = requests
	}
}

// WithTimeout sets how long the circuit stays open before probing
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.openFor = timeout
	}
}

// WithFailureClassifier selects which errors count as failures. Other errors
// are returned to the caller and count as neither failure nor success. By
// default every non-nil error counts.
func WithFailureClassifier(fn func(error) bool) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.isFailure = fn
	}
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(options ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        "default",
		maxFailures: 5,
		minProbes:   3,
		maxProbes:   3,
		openFor:     30 * time.Second,
		isFailure:   func(err error) bool { return err != nil },
	}
	for _, opt := range options {
		opt(cb)
	}
	cb.counters.Name = cb.name
	return cb
}

// Execute runs fn unless the circuit rejects it
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()
	cb.settle(err, probe)
	return err
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset closes the circuit and clears the current run of failures
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveTo(StateClosed, "reset")
}

// admit reports whether a call may run and whether it is a half-open probe
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counters.Requests++

	if cb.state == StateOpen {
		retryAt := cb.openedAt.Add(cb.openFor)
		if time.Now().Before(retryAt) {
			return false, cb.rejection(retryAt)
		}
		cb.moveTo(StateHalfOpen, "timeout expired")
	}

	switch cb.state {
	case StateClosed:
		return false, nil
	case StateHalfOpen:
		if cb.probing >= cb.maxProbes {
			return false, cb.rejection(time.Now().Add(cb.openFor))
		}
		cb.probing++
		return true, nil
	default:
		return false, ErrUnknownState
	}
}

// settle records the result of an admitted call
func (cb *CircuitBreaker) settle(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe && cb.probing > 0 {
		cb.probing--
	}
	if err != nil && !cb.isFailure(err) {
		return
	}

	if err != nil {
		cb.failures++
		cb.counters.Failures++
		cb.counters.LastFailure = time.Now()

		switch {
		case cb.state == StateHalfOpen:
			cb.moveTo(StateOpen, "probe failed")
		case cb.state == StateClosed && cb.failures >= cb.maxFailures:
			cb.moveTo(StateOpen, fmt.Sprintf("failure threshold reached (%d/%d)", cb.failures, cb.maxFailures))
		}
		return
	}

	cb.successes++
	cb.counters.Successes++

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		if cb.successes >= cb.minProbes {
			cb.moveTo(StateClosed, fmt.Sprintf("success threshold reached (%d/%d)", cb.successes, cb.minProbes))
		}
	}
}

// moveTo changes state and notifies listeners. cb.mu must be held.
func (cb *CircuitBreaker) moveTo(to State, reason string) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	cb.probing = 0

	switch to {
	case StateOpen:
		cb.openedAt = time.Now()
	case StateClosed:
		cb.failures = 0
	}

	if from == to {
		return
	}
	for _, listener := range cb.listeners {
		go listener.OnStateChange(from, to, reason)
	}
}

func (cb *CircuitBreaker) rejection(retryAt time.Time) error {
	return &CircuitBreakerError{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		FailureThreshold: cb.maxFailures,
		LastFailure:      cb.counters.LastFailure,
		NextRetry:        retryAt,
	}
}

// AddListener registers a state change listener
func (cb *CircuitBreaker) AddListener(listener StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// RemoveListener unregisters a state change listener
func (cb *CircuitBreaker) RemoveListener(listener StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for i, l := range cb.listeners {
		if l == listener {
			cb.listeners = append(cb.listeners[:i], cb.listeners[i+1:]...)
			return
		}
	}
}

// Snapshot is a point-in-time view of a breaker
type Snapshot struct {
	Name            string
	State           State
	Requests        int64
	Failures        int64
	Successes       int64
	CurrentFailures int
	LastFailure     time.Time
}

// Snapshot returns the breaker counters
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	s := cb.counters
	s.State = cb.state
	s.CurrentFailures = cb.failures
	return s
}
