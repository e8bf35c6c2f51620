// Package queue implements the bounded, tail-drop FIFO event queue that sits
// between producers and the dispatcher's consumer loop.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/coachpo/eventloop/internal/event"
)

const defaultMaxSize = 1024

// Queue is a bounded, multi-producer, single-consumer FIFO of envelopes.
// Admission never blocks: once at capacity, Push drops the envelope and
// reports admitted=false.
type Queue struct {
	mu      sync.Mutex
	items   []*event.Envelope
	maxSize int
	seq     atomic.Uint64
	wake    chan<- struct{}
}

// New constructs a queue with the given capacity (<=0 uses a default) and an
// optional wake channel signaled, non-blockingly, on every successful Push so
// a sleeping dispatcher can be woken without a condition variable.
func New(maxSize int, wake chan<- struct{}) *Queue {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Queue{
		maxSize: maxSize,
		wake:    wake,
	}
}

// Push admits env, assigning it the next sequence number, unless the queue is
// at capacity, in which case it is tail-dropped and admitted is false. env's
// Seq field is written only on admission; a dropped envelope keeps its Seq.
func (q *Queue) Push(env *event.Envelope) (admitted bool) {
	q.mu.Lock()
	if len(q.items) >= q.maxSize {
		q.mu.Unlock()
		return false
	}
	env.Seq = q.seq.Add(1)
	q.items = append(q.items, env)
	q.mu.Unlock()

	q.signal()
	return true
}

func (q *Queue) signal() {
	if q.wake == nil {
		return
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// PopBatch removes and returns up to n envelopes from the head of the queue,
// preserving admission order. It never blocks.
func (q *Queue) PopBatch(n int) []*event.Envelope {
	if n <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]*event.Envelope, n)
	copy(batch, q.items[:n])
	remaining := len(q.items) - n
	copy(q.items, q.items[n:])
	q.items = q.items[:remaining]
	return batch
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SetMaxSize adjusts capacity for future admissions. Existing queued
// envelopes are never truncated to fit the new bound.
func (q *Queue) SetMaxSize(n int) {
	if n <= 0 {
		n = defaultMaxSize
	}
	q.mu.Lock()
	q.maxSize = n
	q.mu.Unlock()
}

// MaxSize returns the currently configured capacity.
func (q *Queue) MaxSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSize
}
