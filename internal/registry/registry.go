// Package registry implements the per-category ordered subscription lists
// the dispatcher consults on every envelope. It mirrors the teacher's
// copy-on-write topic-subscriber pattern: producers mutate by swapping in a
// new slice under lock, readers take a stable snapshot without holding the
// lock across dispatch.
package registry

import (
	"sync"

	"github.com/coachpo/eventloop/internal/event"
)

// Subscription is a single handler registration for one category.
type Subscription struct {
	ID          event.SubscriptionID
	Category    event.Category
	Handler     func(payload any) error
	MinPriority event.Priority

	filterMu sync.RWMutex
	filters  []event.Filter
}

// AddFilter appends f to the chain. Filters are evaluated in insertion order.
func (s *Subscription) AddFilter(f event.Filter) {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	s.filters = append(s.filters[:len(s.filters):len(s.filters)], f)
}

// Accepts reports whether the envelope passes every filter in the chain,
// short-circuiting on the first rejection.
func (s *Subscription) Accepts(payload any) bool {
	s.filterMu.RLock()
	filters := s.filters
	s.filterMu.RUnlock()
	for _, f := range filters {
		if f == nil {
			continue
		}
		if !f.ShouldProcess(payload) {
			return false
		}
	}
	return true
}

type categoryList struct {
	mu   sync.RWMutex
	subs []*Subscription
}

// Registry maps categories to their ordered subscription lists.
type Registry struct {
	mu         sync.RWMutex
	categories map[event.Category]*categoryList
	ids        event.IDSource
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		categories: make(map[event.Category]*categoryList),
	}
}

func (r *Registry) listFor(cat event.Category, create bool) *categoryList {
	r.mu.RLock()
	list, ok := r.categories[cat]
	r.mu.RUnlock()
	if ok || !create {
		return list
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if list, ok = r.categories[cat]; ok {
		return list
	}
	list = &categoryList{}
	r.categories[cat] = list
	return list
}

// Subscribe registers a new subscription for cat, preserving registration
// order as dispatch order, and returns its strictly positive id.
func (r *Registry) Subscribe(cat event.Category, handler func(payload any) error, minPriority event.Priority) event.SubscriptionID {
	list := r.listFor(cat, true)
	sub := &Subscription{
		ID:          event.SubscriptionID(r.ids.Next()),
		Category:    cat,
		Handler:     handler,
		MinPriority: minPriority,
	}

	list.mu.Lock()
	list.subs = append(list.subs[:len(list.subs):len(list.subs)], sub)
	list.mu.Unlock()

	return sub.ID
}

// Unsubscribe removes id from cat's list. Returns false if unknown.
func (r *Registry) Unsubscribe(cat event.Category, id event.SubscriptionID) bool {
	list := r.listFor(cat, false)
	if list == nil {
		return false
	}

	list.mu.Lock()
	defer list.mu.Unlock()
	for i, sub := range list.subs {
		if sub.ID == id {
			next := make([]*Subscription, 0, len(list.subs)-1)
			next = append(next, list.subs[:i]...)
			next = append(next, list.subs[i+1:]...)
			list.subs = next
			return true
		}
	}
	return false
}

// AddFilter appends f to id's chain under cat. Returns false if unknown.
func (r *Registry) AddFilter(cat event.Category, id event.SubscriptionID, f event.Filter) bool {
	list := r.listFor(cat, false)
	if list == nil {
		return false
	}

	list.mu.RLock()
	defer list.mu.RUnlock()
	for _, sub := range list.subs {
		if sub.ID == id {
			sub.AddFilter(f)
			return true
		}
	}
	return false
}

// Snapshot returns the current subscription list for cat in registration
// order. The returned slice is safe to iterate without further locking:
// mutations build a new backing array rather than mutating in place.
func (r *Registry) Snapshot(cat event.Category) []*Subscription {
	list := r.listFor(cat, false)
	if list == nil {
		return nil
	}
	list.mu.RLock()
	defer list.mu.RUnlock()
	return list.subs
}
