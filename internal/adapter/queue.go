package adapter

import "sync"

// workQueue is the unbounded FIFO drained by the executor. Producers never
// block; a buffered signal channel of size one coalesces wake-ups.
type workQueue struct {
	mu     sync.Mutex
	items  []work
	closed bool
	signal chan struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{
		items:  make([]work, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends w. It returns false once the queue is closed.
func (q *workQueue) Enqueue(w work) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, w)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front item without blocking.
func (q *workQueue) TryDequeue() (work, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return work{}, false
	}
	w := q.items[0]
	q.items[0] = work{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return w, true
}

// Wait returns the wake-up channel. It is closed when the queue closes.
func (q *workQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *workQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further items and wakes the executor. Items already queued
// stay available to TryDequeue.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
