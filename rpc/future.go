package rpc

import (
	"context"
	"sync"
)

// Future is the one-shot result of CallAsync. It is completed exactly once.
type Future struct {
	ch      chan struct{}
	outcome Outcome
	err     error
	once    sync.Once
}

func newFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

// complete stores the result and releases waiters. Later calls are ignored.
func (f *Future) complete(outcome Outcome, err error) bool {
	completed := false
	f.once.Do(func() {
		f.outcome = outcome
		f.err = err
		close(f.ch)
		completed = true
	})
	return completed
}

// Done is closed when the outcome is available
func (f *Future) Done() <-chan struct{} {
	return f.ch
}

// Wait blocks until the call completes or ctx is done
func (f *Future) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.ch:
		return f.outcome, f.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Result returns the outcome and whether the call has completed
func (f *Future) Result() (Outcome, bool) {
	select {
	case <-f.ch:
		return f.outcome, true
	default:
		return Outcome{}, false
	}
}

// OnDone runs cb on its own goroutine once the call completes
func (f *Future) OnDone(cb func(Outcome)) {
	go func() {
		<-f.ch
		cb(f.outcome)
	}()
}
