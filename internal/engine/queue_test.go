package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOp(op string) pending {
	return pending{req: Request{Op: op}, reply: make(chan reply, 1)}
}

func TestCallQueue_FIFO(t *testing.T) {
	q := newCallQueue()
	for _, op := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(pendingOp(op)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, p.req.Op)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "empty queue")
	assert.Equal(t, 0, q.Len())
}

func TestCallQueue_SignalCoalesces(t *testing.T) {
	q := newCallQueue()
	q.Enqueue(pendingOp("a"))
	q.Enqueue(pendingOp("b"))

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected a signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("two enqueues should leave one signal")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestCallQueue_Close(t *testing.T) {
	q := newCallQueue()
	require.True(t, q.Enqueue(pendingOp("a")))
	q.Close()
	q.Close() // Idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(pendingOp("b")), "closed queue rejects requests")

	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue must wake waiters")
	}

	p, ok := q.TryDequeue()
	require.True(t, ok, "queued requests survive Close")
	assert.Equal(t, "a", p.req.Op)
}
