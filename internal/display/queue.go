package display

import "sync"

// Queue is an unbounded multi-producer, single-consumer FIFO of commands.
// Enqueue never blocks on the consumer.
type Queue struct {
	mu      sync.Mutex
	pending []Command
	ready   chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends cmd. Commands from one goroutine are drained in the order
// they were enqueued.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued command in FIFO order.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Ready is signalled after an enqueue. A consumer can wait on it instead of
// polling; a single signal may cover several commands.
func (q *Queue) Ready() <-chan struct{} { return q.ready }
