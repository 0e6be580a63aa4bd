package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimpleMetricsCollector(t *testing.T) {
	t.Run("counts calls per outcome kind", func(t *testing.T) {
		c := NewSimpleMetricsCollector()
		c.RecordCall(OutcomeSuccess, 10*time.Millisecond)
		c.RecordCall(OutcomeSuccess, 30*time.Millisecond)
		c.RecordCall(OutcomeUnroutable, 5*time.Millisecond)
		c.RecordCall(OutcomeTimeout, 50*time.Millisecond)
		c.RecordCall(OutcomeTransportFailure, time.Millisecond)

		snap := c.Snapshot()
		assert.Equal(t, int64(5), snap.Calls)
		assert.Equal(t, int64(2), snap.Successes)
		assert.Equal(t, int64(1), snap.Unroutable)
		assert.Equal(t, int64(1), snap.Timeouts)
		assert.Equal(t, int64(1), snap.TransportFailures)
		assert.Equal(t, 50*time.Millisecond, snap.MaxLatency)
		assert.Equal(t, 96*time.Millisecond, snap.TotalLatency)
		assert.Equal(t, 96*time.Millisecond/5, snap.AverageLatency())
	})

	t.Run("average of an empty snapshot is zero", func(t *testing.T) {
		assert.Zero(t, MetricsSnapshot{}.AverageLatency())
	})
}

func TestOutcome(t *testing.T) {
	t.Run("kinds have stable names", func(t *testing.T) {
		assert.Equal(t, "success", OutcomeSuccess.String())
		assert.Equal(t, "unroutable", OutcomeUnroutable.String())
		assert.Equal(t, "timeout", OutcomeTimeout.String())
		assert.Equal(t, "transport_failure", OutcomeTransportFailure.String())
		assert.Equal(t, "unknown(0)", OutcomeKind(0).String())
	})

	t.Run("unroutable carries status 500 and an empty body", func(t *testing.T) {
		o := Unroutable()
		assert.Equal(t, 500, o.Status)
		assert.NotNil(t, o.Body)
		assert.Empty(t, o.Body)
		assert.False(t, o.OK())
	})

	t.Run("success carries status 200", func(t *testing.T) {
		o := Success(ContentTypeJSON, []byte("{}"))
		assert.Equal(t, 200, o.Status)
		assert.True(t, o.OK())
	})
}
