package rpc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	key := Key{ReplyTo: "amq.gen-1", CorrelationID: "c-1"}
	deadline := time.Now().Add(time.Minute)

	t.Run("Register rejects incomplete keys", func(t *testing.T) {
		r := NewRegistry(nil)
		noop := func(Outcome) {}

		assert.ErrorIs(t, r.Register(Key{ReplyTo: "q"}, deadline, noop), ErrInvalidKey)
		assert.ErrorIs(t, r.Register(Key{CorrelationID: "c"}, deadline, noop), ErrInvalidKey)
		assert.ErrorIs(t, r.Register(key, deadline, nil), ErrInvalidKey)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("Register rejects a live duplicate", func(t *testing.T) {
		r := NewRegistry(nil)
		require.NoError(t, r.Register(key, deadline, func(Outcome) {}))

		err := r.Register(key, deadline, func(Outcome) {})
		assert.ErrorIs(t, err, ErrDuplicateKey)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("key can be reused after resolution", func(t *testing.T) {
		r := NewRegistry(nil)
		require.NoError(t, r.Register(key, deadline, func(Outcome) {}))
		require.True(t, r.ResolveAndRemove(key, Timeout()))

		assert.NoError(t, r.Register(key, deadline, func(Outcome) {}))
	})

	t.Run("ResolveAndRemove delivers the outcome once", func(t *testing.T) {
		r := NewRegistry(nil)
		var got []Outcome
		require.NoError(t, r.Register(key, deadline, func(o Outcome) { got = append(got, o) }))

		assert.True(t, r.ResolveAndRemove(key, Success(ContentTypeJSON, []byte(`{}`))))
		assert.False(t, r.ResolveAndRemove(key, Unroutable()))
		assert.False(t, r.Contains(key))

		require.Len(t, got, 1)
		assert.Equal(t, OutcomeSuccess, got[0].Kind)
	})

	t.Run("ResolveAndRemove on unknown key has no effect", func(t *testing.T) {
		r := NewRegistry(nil)
		assert.False(t, r.ResolveAndRemove(key, Unroutable()))
		assert.Equal(t, 0, r.Len())
	})

	t.Run("listener may call back into the registry", func(t *testing.T) {
		r := NewRegistry(nil)
		other := Key{ReplyTo: "amq.gen-2", CorrelationID: "c-2"}
		require.NoError(t, r.Register(key, deadline, func(Outcome) {
			_ = r.Register(other, deadline, func(Outcome) {})
		}))

		assert.True(t, r.ResolveAndRemove(key, Timeout()))
		assert.True(t, r.Contains(other))
	})

	t.Run("ForceRemove does not notify", func(t *testing.T) {
		r := NewRegistry(nil)
		called := false
		require.NoError(t, r.Register(key, deadline, func(Outcome) { called = true }))

		assert.True(t, r.ForceRemove(key))
		assert.False(t, r.ForceRemove(key))
		assert.False(t, called)
		assert.False(t, r.ResolveAndRemove(key, Timeout()))
	})

	t.Run("Expired lists entries past their deadline", func(t *testing.T) {
		r := NewRegistry(nil)
		late := Key{ReplyTo: "amq.gen-late", CorrelationID: "c"}
		require.NoError(t, r.Register(key, time.Now().Add(time.Hour), func(Outcome) {}))
		require.NoError(t, r.Register(late, time.Now().Add(-time.Second), func(Outcome) {}))

		assert.Equal(t, []Key{late}, r.Expired(time.Now()))
	})

	t.Run("Clear resolves every entry", func(t *testing.T) {
		r := NewRegistry(nil)
		var count atomic.Int32
		for _, id := range []string{"a", "b", "c"} {
			k := Key{ReplyTo: "q", CorrelationID: id}
			require.NoError(t, r.Register(k, deadline, func(o Outcome) {
				assert.Equal(t, OutcomeTransportFailure, o.Kind)
				count.Add(1)
			}))
		}

		assert.Equal(t, 3, r.Clear(TransportFailure(ErrDispatcherClosed)))
		assert.Equal(t, int32(3), count.Load())
		assert.Equal(t, 0, r.Len())
	})
}

func TestRegistryConcurrentResolution(t *testing.T) {
	t.Run("exactly one of many racing resolvers wins", func(t *testing.T) {
		for round := 0; round < 50; round++ {
			r := NewRegistry(nil)
			key := Key{ReplyTo: "q", CorrelationID: "race"}
			var deliveries atomic.Int32
			require.NoError(t, r.Register(key, time.Time{}, func(Outcome) { deliveries.Add(1) }))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					outcome := Success(ContentTypeJSON, nil)
					if i%2 == 0 {
						outcome = Unroutable()
					}
					if r.ResolveAndRemove(key, outcome) {
						wins.Add(1)
					}
				}(i)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.ForceRemove(key) {
					wins.Add(1)
				}
			}()
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			assert.LessOrEqual(t, deliveries.Load(), int32(1))
			assert.Equal(t, 0, r.Len())
		}
	})
}
