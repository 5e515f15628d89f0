package bridge

import "sync"

// growableQueue is an in-order FIFO between the event dispatcher and one
// subscription's pump. Push never blocks and never drops: the ring doubles
// when full, so a slow consumer cannot stall the dispatcher or reorder
// events.
type growableQueue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool
}

// newGrowableQueue creates a queue with the given initial capacity.
func newGrowableQueue[T any](initialCapacity int) *growableQueue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &growableQueue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. Returns false if the queue is closed.
func (q *growableQueue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == q.capacity {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++

	q.cond.Signal()
	return true
}

// Next removes and returns the oldest item, blocking until one is
// available. Returns false once the queue is closed and drained.
func (q *growableQueue[T]) Next() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}

	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // release reference
	q.head = (q.head + 1) % q.capacity
	q.count--

	return item, true
}

// Close stops accepting items. Buffered items remain readable.
func (q *growableQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of buffered items.
func (q *growableQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// grow doubles capacity, relinearizing the ring. Caller holds the lock.
func (q *growableQueue[T]) grow() {
	newCap := q.capacity * 2
	newBuf := make([]T, newCap)

	for i := 0; i < q.count; i++ {
		newBuf[i] = q.buf[(q.head+i)%q.capacity]
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCap
}
