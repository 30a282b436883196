package engine

import "sync"

// pending is a submitted request waiting for the writer.
type pending struct {
	req   Request
	reply chan reply // Buffered, size 1
}

type reply struct {
	res Result
	err error
}

// callQueue is a thread-safe, unbounded FIFO of pending requests.
//
// Submit may be called from any goroutine; only the Run loop dequeues.
// The signal channel lets Run wait on the queue and ctx.Done together.
type callQueue struct {
	mu      sync.Mutex
	pending []pending
	closed  bool
	signal  chan struct{} // Signals availability (buffered, size 1)
}

func newCallQueue() *callQueue {
	return &callQueue{
		pending: make([]pending, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds p to the back of the queue.
// Returns false if the queue is closed.
func (q *callQueue) Enqueue(p pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, p)

	// Non-blocking: the buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *callQueue) TryDequeue() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return pending{}, false
	}
	p := q.pending[0]
	// Release the slot so the backing array does not pin request args
	q.pending[0] = pending{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return p, true
}

// Wait returns a channel that signals when requests may be available.
// The channel is closed when the queue is closed.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Closed reports whether Close has been called.
func (q *callQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting requests and wakes the Run loop.
// Requests still queued are drained by Run before it returns.
func (q *callQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
