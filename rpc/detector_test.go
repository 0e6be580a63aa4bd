package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnroutableDetector(t *testing.T) {
	key := Key{ReplyTo: "amq.gen-1", CorrelationID: "c-1"}
	ret := Return{
		ReplyCode:     312,
		ReplyText:     "NO_ROUTE",
		Exchange:      "platform",
		RoutingKey:    "creationRequested",
		CorrelationID: key.CorrelationID,
		ReplyTo:       key.ReplyTo,
	}

	t.Run("return resolves the pending call as unroutable", func(t *testing.T) {
		registry := NewRegistry(nil)
		metrics := NewSimpleMetricsCollector()
		detector := NewUnroutableDetector(registry, metrics, nil)

		var got Outcome
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(o Outcome) { got = o }))

		assert.True(t, detector.HandleReturn(ret))
		assert.Equal(t, OutcomeUnroutable, got.Kind)
		assert.Equal(t, 500, got.Status)
		assert.Empty(t, got.Body)
		assert.Equal(t, 0, registry.Len())
		assert.Equal(t, int64(1), metrics.Snapshot().Returns)
	})

	t.Run("repeated return is a no-op", func(t *testing.T) {
		registry := NewRegistry(nil)
		metrics := NewSimpleMetricsCollector()
		detector := NewUnroutableDetector(registry, metrics, nil)

		calls := 0
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(Outcome) { calls++ }))

		assert.True(t, detector.HandleReturn(ret))
		assert.False(t, detector.HandleReturn(ret))
		assert.Equal(t, 1, calls)

		snap := metrics.Snapshot()
		assert.Equal(t, int64(2), snap.Returns)
		assert.Equal(t, int64(1), snap.StaleReturns)
	})

	t.Run("return without reply metadata is ignored", func(t *testing.T) {
		registry := NewRegistry(nil)
		detector := NewUnroutableDetector(registry, nil, nil)
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(Outcome) {}))

		assert.False(t, detector.HandleReturn(Return{Exchange: "platform", RoutingKey: "x"}))
		assert.False(t, detector.HandleReturn(Return{ReplyTo: key.ReplyTo}))
		assert.True(t, registry.Contains(key))
	})

	t.Run("return for a different reply queue is ignored", func(t *testing.T) {
		registry := NewRegistry(nil)
		detector := NewUnroutableDetector(registry, nil, nil)
		require.NoError(t, registry.Register(key, time.Now().Add(time.Second), func(Outcome) {}))

		other := ret
		other.ReplyTo = "amq.gen-other"
		assert.False(t, detector.HandleReturn(other))
		assert.True(t, registry.Contains(key))
	})
}
