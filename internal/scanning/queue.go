package scanning

import "sync"

// WorkQueue hands out every port of a range exactly once, in ascending
// order, to any number of concurrent takers.
type WorkQueue struct {
	mu   sync.Mutex
	next int
	end  int
}

// NewWorkQueue creates a queue holding every port in [start, end].
// An inverted range yields an empty queue.
func NewWorkQueue(start, end int) *WorkQueue {
	return &WorkQueue{next: start, end: end}
}

// Take returns the next port. ok is false once the queue is exhausted.
// It never blocks beyond the internal lock.
func (q *WorkQueue) Take() (port int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.next > q.end {
		return 0, false
	}
	port = q.next
	q.next++
	return port, true
}

// Drain abandons all remaining ports and returns how many were dropped.
func (q *WorkQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.remaining()
	q.next = q.end + 1
	return dropped
}

// Remaining returns the number of ports not yet taken.
func (q *WorkQueue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining()
}

func (q *WorkQueue) remaining() int {
	if q.next > q.end {
		return 0
	}
	return q.end - q.next + 1
}
