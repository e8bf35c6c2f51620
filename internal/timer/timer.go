// Package timer implements the min-heap timer wheel driving scheduled tasks,
// repeating tasks, and deferred event publication. It uses container/heap:
// no library in the example corpus supplies a priority queue, and a heap over
// a due-time comparator is a fundamental algorithm rather than a concern with
// an idiomatic third-party home.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/coachpo/eventloop/internal/event"
)

// Kind distinguishes what a timer entry does when it fires.
type Kind int

const (
	OneShotTask Kind = iota
	RepeatingTask
	DeferredEvent
)

// Entry is a single scheduled action. Fn is set for OneShotTask and
// RepeatingTask; Envelope is set for DeferredEvent.
type Entry struct {
	ID       event.TaskID
	Kind     Kind
	DueAt    time.Time
	Interval time.Duration
	Fn       func() error
	Envelope *event.Envelope

	seq       int64
	index     int
	cancelled bool
}

// Cancelled reports whether the entry was cancelled before firing. Safe to
// call only while the owning Wheel's lock is held, which is how Wheel uses it.
func (e *Entry) Cancelled() bool { return e.cancelled }

// entryHeap implements container/heap.Interface, ordered by DueAt then by
// insertion sequence to break ties deterministically.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].DueAt.Equal(h[j].DueAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].DueAt.Before(h[j].DueAt)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel is the concurrency-safe min-heap of pending timer entries, shared
// between arbitrary producer goroutines and the single dispatcher goroutine.
type Wheel struct {
	mu   sync.Mutex
	h    entryHeap
	byID map[event.TaskID]*Entry
	ids  event.IDSource
	seq  int64
	wake chan<- struct{}
}

// New constructs an empty timer wheel. wake is signaled, non-blockingly,
// whenever an insertion moves the earliest due time earlier.
func New(wake chan<- struct{}) *Wheel {
	return &Wheel{
		byID: make(map[event.TaskID]*Entry),
		wake: wake,
	}
}

func (w *Wheel) signal() {
	if w.wake == nil {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Wheel) insert(e *Entry, now time.Time) event.TaskID {
	w.mu.Lock()
	wasEarliest := w.h.Len() == 0 || e.DueAt.Before(w.h[0].DueAt)
	w.seq++
	e.seq = w.seq
	e.ID = event.TaskID(w.ids.Next())
	heap.Push(&w.h, e)
	w.byID[e.ID] = e
	w.mu.Unlock()

	if wasEarliest {
		w.signal()
	}
	return e.ID
}

// ScheduleTask enqueues a one-shot task due at now+delay.
func (w *Wheel) ScheduleTask(now time.Time, delay time.Duration, fn func() error) event.TaskID {
	e := &Entry{Kind: OneShotTask, DueAt: now.Add(delay), Fn: fn}
	return w.insert(e, now)
}

// ScheduleRepeating enqueues a repeating task, first due at now+interval.
func (w *Wheel) ScheduleRepeating(now time.Time, interval time.Duration, fn func() error) event.TaskID {
	e := &Entry{Kind: RepeatingTask, DueAt: now.Add(interval), Interval: interval, Fn: fn}
	return w.insert(e, now)
}

// PublishAfter enqueues a deferred-publication entry due at now+delay.
func (w *Wheel) PublishAfter(now time.Time, delay time.Duration, env *event.Envelope) event.TaskID {
	e := &Entry{Kind: DeferredEvent, DueAt: now.Add(delay), Envelope: env}
	return w.insert(e, now)
}

// CancelTask marks id cancelled. Returns false if unknown or already
// cancelled. A cancelled one-shot entry is removed from the heap immediately;
// a cancelled repeating entry is removed and will not be reinserted.
func (w *Wheel) CancelTask(id event.TaskID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.byID[id]
	if !ok || e.cancelled {
		return false
	}
	e.cancelled = true
	delete(w.byID, id)
	if e.index >= 0 && e.index < w.h.Len() && w.h[e.index] == e {
		heap.Remove(&w.h, e.index)
	}
	return true
}

// Len reports the number of pending (unfired) entries.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.h.Len()
}

// NextDue reports the earliest due time among pending entries and whether any
// entry exists.
func (w *Wheel) NextDue() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.h.Len() == 0 {
		return time.Time{}, false
	}
	return w.h[0].DueAt, true
}

// DrainDue pops every entry with DueAt<=now, reinserting still-live
// repeating entries with their next due time coalesced against now so missed
// ticks never queue up. The dispatcher executes/publishes the returned
// entries itself; DrainDue performs no side effects beyond heap bookkeeping.
func (w *Wheel) DrainDue(now time.Time) []*Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	var due, requeue []*Entry
	for w.h.Len() > 0 && !w.h[0].DueAt.After(now) {
		e := heap.Pop(&w.h).(*Entry)
		if e.cancelled {
			delete(w.byID, e.ID)
			continue
		}
		due = append(due, e)

		switch e.Kind {
		case RepeatingTask:
			next := e.DueAt.Add(e.Interval)
			if next.Before(now) {
				next = now
			}
			reinserted := &Entry{
				ID:       e.ID,
				Kind:     RepeatingTask,
				DueAt:    next,
				Interval: e.Interval,
				Fn:       e.Fn,
			}
			w.seq++
			reinserted.seq = w.seq
			requeue = append(requeue, reinserted)
			w.byID[e.ID] = reinserted
		default:
			delete(w.byID, e.ID)
		}
	}
	// Reinsert only after the scan so an entry coalesced to now is not popped
	// a second time by this same drain.
	for _, e := range requeue {
		heap.Push(&w.h, e)
	}
	return due
}
