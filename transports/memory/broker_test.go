package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/mmate-rpc/rpc"
)

func receive(t *testing.T, ch <-chan rpc.Envelope) rpc.Envelope {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return rpc.Envelope{}
	}
}

func TestBrokerQueues(t *testing.T) {
	ctx := context.Background()

	t.Run("declared queues get server-style names", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		q1, err := b.DeclareReplyQueue(ctx)
		require.NoError(t, err)
		q2, err := b.DeclareReplyQueue(ctx)
		require.NoError(t, err)

		assert.Contains(t, q1, "amq.gen-")
		assert.NotEqual(t, q1, q2)
		assert.Equal(t, 2, b.QueueCount())
	})

	t.Run("deleting twice is not an error", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		q, err := b.DeclareReplyQueue(ctx)
		require.NoError(t, err)
		assert.NoError(t, b.DeleteReplyQueue(ctx, q))
		assert.NoError(t, b.DeleteReplyQueue(ctx, q))
		assert.Equal(t, 0, b.QueueCount())
	})

	t.Run("subscribe to unknown queue fails", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		_, err := b.Subscribe(ctx, "missing", func(rpc.Envelope) {})
		assert.ErrorIs(t, err, ErrQueueNotFound)
	})

	t.Run("messages published before subscribe are delivered", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		q, err := b.DeclareReplyQueue(ctx)
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, rpc.Envelope{RoutingKey: q, Body: []byte("early")}, true))

		got := make(chan rpc.Envelope, 1)
		sub, err := b.Subscribe(ctx, q, func(msg rpc.Envelope) { got <- msg })
		require.NoError(t, err)
		defer sub.Cancel()

		assert.Equal(t, []byte("early"), receive(t, got).Body)
	})

	t.Run("cancel detaches the consumer", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		q, _ := b.DeclareReplyQueue(ctx)
		sub, err := b.Subscribe(ctx, q, func(rpc.Envelope) {})
		require.NoError(t, err)
		assert.Equal(t, 1, b.SubscriberCount())

		require.NoError(t, sub.Cancel())
		assert.Equal(t, 0, b.SubscriberCount())

		select {
		case err := <-sub.Lost():
			t.Fatalf("cancel must not report loss: %v", err)
		default:
		}
	})
}

func TestBrokerRouting(t *testing.T) {
	ctx := context.Background()

	t.Run("binding receives matching messages", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		got := make(chan rpc.Envelope, 1)
		b.Bind("platform", "creationRequested", func(_ context.Context, msg rpc.Envelope) { got <- msg })

		require.NoError(t, b.Publish(ctx, rpc.Envelope{Exchange: "platform", RoutingKey: "creationRequested", Body: []byte("x")}, true))
		assert.Equal(t, []byte("x"), receive(t, got).Body)
	})

	t.Run("mandatory message without route is returned", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		returns := make(chan rpc.Return, 1)
		cancel := b.NotifyReturn(func(r rpc.Return) { returns <- r })
		defer cancel()

		require.NoError(t, b.Publish(ctx, rpc.Envelope{
			Exchange:      "platform",
			RoutingKey:    "nobody",
			CorrelationID: "c-1",
			ReplyTo:       "amq.gen-x",
		}, true))

		select {
		case r := <-returns:
			assert.Equal(t, uint16(NoRouteCode), r.ReplyCode)
			assert.Equal(t, "c-1", r.CorrelationID)
			assert.Equal(t, "amq.gen-x", r.ReplyTo)
		case <-time.After(time.Second):
			t.Fatal("no return")
		}
	})

	t.Run("non-mandatory message without route is dropped", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		returned := make(chan rpc.Return, 1)
		b.NotifyReturn(func(r rpc.Return) { returned <- r })

		require.NoError(t, b.Publish(ctx, rpc.Envelope{Exchange: "platform", RoutingKey: "nobody"}, false))
		select {
		case <-returned:
			t.Fatal("unexpected return")
		case <-time.After(30 * time.Millisecond):
		}
	})

	t.Run("unbind stops routing", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		returned := make(chan rpc.Return, 1)
		b.NotifyReturn(func(r rpc.Return) { returned <- r })
		unbind := b.Bind("svc", "op", func(context.Context, rpc.Envelope) {})
		unbind()

		require.NoError(t, b.Publish(ctx, rpc.Envelope{Exchange: "svc", RoutingKey: "op"}, true))
		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("expected a return after unbind")
		}
	})

	t.Run("serve answers on the reply queue", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		b.Serve("svc", "upper", func(req rpc.Envelope) (string, []byte, bool) {
			return rpc.ContentTypeText, []byte("PONG"), true
		})

		q, _ := b.DeclareReplyQueue(ctx)
		got := make(chan rpc.Envelope, 1)
		sub, err := b.Subscribe(ctx, q, func(msg rpc.Envelope) { got <- msg })
		require.NoError(t, err)
		defer sub.Cancel()

		require.NoError(t, b.Publish(ctx, rpc.Envelope{Exchange: "svc", RoutingKey: "upper", ReplyTo: q, CorrelationID: "c-9"}, true))

		reply := receive(t, got)
		assert.Equal(t, "c-9", reply.CorrelationID)
		assert.Equal(t, []byte("PONG"), reply.Body)
	})
}

func TestBrokerFailureInjection(t *testing.T) {
	ctx := context.Background()

	t.Run("FailNextPublish fails exactly once", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		boom := errors.New("boom")
		b.FailNextPublish(boom)
		assert.ErrorIs(t, b.Publish(ctx, rpc.Envelope{RoutingKey: "x"}, false), boom)
		assert.NoError(t, b.Publish(ctx, rpc.Envelope{RoutingKey: "x"}, false))
	})

	t.Run("DropSubscriptions reports loss", func(t *testing.T) {
		b := NewBroker()
		defer b.Close()

		q, _ := b.DeclareReplyQueue(ctx)
		sub, err := b.Subscribe(ctx, q, func(rpc.Envelope) {})
		require.NoError(t, err)

		lost := errors.New("connection closed")
		assert.Equal(t, 1, b.DropSubscriptions(lost))

		select {
		case err := <-sub.Lost():
			assert.ErrorIs(t, err, lost)
		case <-time.After(time.Second):
			t.Fatal("loss not reported")
		}
		assert.NoError(t, sub.Cancel())
	})

	t.Run("operations fail after close", func(t *testing.T) {
		b := NewBroker()
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		_, err := b.DeclareReplyQueue(ctx)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, b.Publish(ctx, rpc.Envelope{RoutingKey: "x"}, false), ErrClosed)
	})
}
