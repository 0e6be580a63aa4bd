package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyMatcher(t *testing.T) {
	key := Key{ReplyTo: "amq.gen-1", CorrelationID: "c-1"}

	t.Run("matching delivery resolves with the body unaltered", func(t *testing.T) {
		registry := NewRegistry(nil)
		var got Outcome
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(o Outcome) { got = o }))
		matcher := NewReplyMatcher(key, registry, nil, nil)

		body := []byte(`{"status":200,"id":"test1Plat"}`)
		assert.True(t, matcher.HandleDelivery(Envelope{CorrelationID: "c-1", ContentType: ContentTypeJSON, Body: body}))

		assert.Equal(t, OutcomeSuccess, got.Kind)
		assert.Equal(t, 200, got.Status)
		assert.Equal(t, ContentTypeJSON, got.ContentType)
		assert.Equal(t, body, got.Body)

		select {
		case <-matcher.Done():
		default:
			t.Fatal("matcher should be done")
		}
	})

	t.Run("foreign correlation id is discarded", func(t *testing.T) {
		registry := NewRegistry(nil)
		metrics := NewSimpleMetricsCollector()
		calls := 0
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(Outcome) { calls++ }))
		matcher := NewReplyMatcher(key, registry, metrics, nil)

		assert.False(t, matcher.HandleDelivery(Envelope{CorrelationID: "someone-else"}))
		assert.Equal(t, 0, calls)
		assert.True(t, registry.Contains(key))
		assert.Equal(t, int64(1), metrics.Snapshot().Mismatches)

		assert.True(t, matcher.HandleDelivery(Envelope{CorrelationID: "c-1"}))
		assert.Equal(t, 1, calls)
	})

	t.Run("later deliveries are ignored", func(t *testing.T) {
		registry := NewRegistry(nil)
		calls := 0
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(Outcome) { calls++ }))
		matcher := NewReplyMatcher(key, registry, nil, nil)

		assert.True(t, matcher.HandleDelivery(Envelope{CorrelationID: "c-1"}))
		assert.False(t, matcher.HandleDelivery(Envelope{CorrelationID: "c-1"}))
		assert.Equal(t, 1, calls)
	})

	t.Run("reply after the call was resolved elsewhere changes nothing", func(t *testing.T) {
		registry := NewRegistry(nil)
		var got Outcome
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(o Outcome) { got = o }))
		require.True(t, registry.ResolveAndRemove(key, Unroutable()))

		matcher := NewReplyMatcher(key, registry, nil, nil)
		assert.False(t, matcher.HandleDelivery(Envelope{CorrelationID: "c-1", Body: []byte("late")}))
		assert.Equal(t, OutcomeUnroutable, got.Kind)
	})
}
