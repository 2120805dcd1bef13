/*
Package taskqueue provides the unbounded, closable FIFO that connects task
submitters to pool workers.

A Queue has two logical ends. The Sender end appends items and is closed
exactly once by its owner; the Receiver end blocks in Recv until an item is
available or until the queue is both closed and drained:

	q := taskqueue.New[func()]()
	tx, rx := q.Sender(), q.Receiver()

	go func() {
		for fn, ok := rx.Recv(); ok; fn, ok = rx.Recv() {
			fn()
		}
	}()

	_ = tx.Send(func() { fmt.Println("hello") })
	tx.Close()

Ordering:

Enqueue order is a total order across all producers; each Send is atomic.
Every item is handed to exactly one Recv call, in enqueue order. With several
receivers the completion order of items is unconstrained.

Capacity:

The queue never blocks a producer. Sustained imbalance between producers and
consumers grows memory without limit; callers that need backpressure must
arrange it themselves.
*/
package taskqueue
