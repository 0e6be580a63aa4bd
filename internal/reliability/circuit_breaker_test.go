package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("service down")

type recordingListener struct {
	mu          sync.Mutex
	transitions []State
	changed     chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{changed: make(chan struct{}, 16)}
}

func (l *recordingListener) OnStateChange(from, to State, reason string) {
	l.mu.Lock()
	l.transitions = append(l.transitions, to)
	l.mu.Unlock()
	l.changed <- struct{}{}
}

func fail(cb *CircuitBreaker, err error) error {
	return cb.Execute(context.Background(), func() error { return err })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return nil })
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("starts closed and runs functions", func(t *testing.T) {
		cb := NewCircuitBreaker()
		assert.Equal(t, StateClosed, cb.State())
		assert.NoError(t, succeed(cb))
	})

	t.Run("opens after the failure threshold", func(t *testing.T) {
		cb := NewCircuitBreaker(WithName("registry"), WithFailureThreshold(3))

		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, fail(cb, errDown), errDown)
		}
		assert.Equal(t, StateOpen, cb.State())

		executed := false
		err := cb.Execute(context.Background(), func() error {
			executed = true
			return nil
		})
		assert.False(t, executed)
		assert.ErrorIs(t, err, ErrCircuitOpen)

		var cbErr *CircuitBreakerError
		require.ErrorAs(t, err, &cbErr)
		assert.Equal(t, "registry", cbErr.Name)
		assert.Equal(t, StateOpen, cbErr.State)
		assert.Equal(t, 3, cbErr.Failures)
	})

	t.Run("success in closed state resets the failure count", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(2))

		_ = fail(cb, errDown)
		require.NoError(t, succeed(cb))
		_ = fail(cb, errDown)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("classifier ignores unrelated errors", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithFailureClassifier(func(err error) bool { return errors.Is(err, errDown) }),
		)

		other := errors.New("bad reply")
		assert.ErrorIs(t, fail(cb, other), other)
		assert.Equal(t, StateClosed, cb.State())

		_ = fail(cb, errDown)
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("half-open probes close the circuit", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithSuccessThreshold(2),
			WithTimeout(20*time.Millisecond),
		)
		_ = fail(cb, errDown)
		require.Equal(t, StateOpen, cb.State())

		time.Sleep(40 * time.Millisecond)

		require.NoError(t, succeed(cb))
		assert.Equal(t, StateHalfOpen, cb.State())
		require.NoError(t, succeed(cb))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failed probe reopens the circuit", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(1), WithTimeout(20*time.Millisecond))
		_ = fail(cb, errDown)

		time.Sleep(40 * time.Millisecond)

		_ = fail(cb, errDown)
		assert.Equal(t, StateOpen, cb.State())
		assert.ErrorIs(t, succeed(cb), ErrCircuitOpen)
	})

	t.Run("limits concurrent half-open probes", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithHalfOpenRequests(1),
			WithTimeout(20*time.Millisecond),
		)
		_ = fail(cb, errDown)
		time.Sleep(40 * time.Millisecond)

		inProbe := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- cb.Execute(context.Background(), func() error {
				close(inProbe)
				<-release
				return nil
			})
		}()

		<-inProbe
		assert.ErrorIs(t, succeed(cb), ErrCircuitOpen)
		close(release)
		assert.NoError(t, <-done)

		// the slot is free again
		assert.NoError(t, succeed(cb))
	})

	t.Run("cancelled context does not execute", func(t *testing.T) {
		cb := NewCircuitBreaker()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		executed := false
		err := cb.Execute(ctx, func() error {
			executed = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, executed)
	})

	t.Run("notifies listeners and resets", func(t *testing.T) {
		listener := newRecordingListener()
		cb := NewCircuitBreaker(WithFailureThreshold(1))
		cb.AddListener(listener)

		_ = fail(cb, errDown)
		<-listener.changed

		cb.Reset()
		<-listener.changed
		assert.Equal(t, StateClosed, cb.State())

		listener.mu.Lock()
		assert.Equal(t, []State{StateOpen, StateClosed}, listener.transitions)
		listener.mu.Unlock()

		cb.RemoveListener(listener)
		_ = fail(cb, errDown)
		select {
		case <-listener.changed:
			t.Fatal("removed listener was notified")
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		cb := NewCircuitBreaker(WithName("aam"))
		_ = succeed(cb)
		_ = fail(cb, errDown)

		s := cb.Snapshot()
		assert.Equal(t, "aam", s.Name)
		assert.Equal(t, StateClosed, s.State)
		assert.EqualValues(t, 2, s.Requests)
		assert.EqualValues(t, 1, s.Successes)
		assert.EqualValues(t, 1, s.Failures)
		assert.Equal(t, 1, s.CurrentFailures)
	})
}
