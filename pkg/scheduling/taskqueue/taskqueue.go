package taskqueue

import (
	"sync"

	"github.com/gammazero/deque"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// ErrClosed is returned by Send once the producer side has been closed.
var ErrClosed = tperrors.NewOperationError("taskqueue", "Send", tperrors.ErrClosed)

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	Sent     int64
	Received int64
	Pending  int
	Closed   bool
}

// Queue is an unbounded FIFO shared by any number of producers and consumers.
// Items are appended with Send and removed with a blocking Recv. Once the
// queue is closed, Recv keeps returning the remaining items and reports
// closure only after the queue has drained.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  deque.Deque[T]
	closed bool

	sent     int64
	received int64
}

// New creates an empty, open queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Sender returns the producer end of the queue.
func (q *Queue[T]) Sender() Sender[T] {
	return Sender[T]{q: q}
}

// Receiver returns the consumer end of the queue.
func (q *Queue[T]) Receiver() Receiver[T] {
	return Receiver[T]{q: q}
}

// Send appends v to the tail of the queue and wakes one waiting receiver.
// It never blocks on queue capacity.
func (q *Queue[T]) Send(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items.PushBack(v)
	q.sent++
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// Recv blocks until an item is available or the queue is closed and empty.
// ok is false only in the latter case.
func (q *Queue[T]) Recv() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.items.Len() == 0 {
		return v, false
	}

	q.received++
	return q.items.PopFront(), true
}

// Close closes the producer side. It is idempotent and wakes every blocked
// receiver so they can drain what is left and observe closure.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of items waiting to be received.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Stats returns a snapshot of queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Sent:     q.sent,
		Received: q.received,
		Pending:  q.items.Len(),
		Closed:   q.closed,
	}
}

// Sender is the producer end of a Queue. Copies share the same queue.
type Sender[T any] struct {
	q *Queue[T]
}

// Send enqueues v. See Queue.Send.
func (s Sender[T]) Send(v T) error {
	return s.q.Send(v)
}

// Close closes the queue for further sends. See Queue.Close.
func (s Sender[T]) Close() {
	s.q.Close()
}

// Receiver is the consumer end of a Queue. Copies share the same queue.
type Receiver[T any] struct {
	q *Queue[T]
}

// Recv dequeues the next item, blocking while the queue is open and empty.
func (r Receiver[T]) Recv() (T, bool) {
	return r.q.Recv()
}
