package event

import "reflect"

// Category identifies the family of a published event. It is derived from
// the Go type parameter at the public API boundary via CategoryOf, and used
// internally as a map key so the registry can route without per-type code
// generation, mirroring the teacher's type-keyed routing tables.
type Category = reflect.Type

// CategoryOf returns the category key for type parameter E.
func CategoryOf[E any]() Category {
	var zero E
	return reflect.TypeOf(&zero).Elem()
}

// Envelope is the type-erased unit that flows through the event queue. Seq
// is assigned at admission time and is the sole tie-breaker for same-priority
// FIFO ordering within a category.
type Envelope struct {
	Category Category
	Payload  any
	Priority Priority
	Seq      uint64

	returned bool
}

// Reset clears the envelope so it can be returned to a pool. Satisfies
// pool.PooledObject's Reset/SetReturned/IsReturned trio.
func (e *Envelope) Reset() {
	e.Category = nil
	e.Payload = nil
	e.Priority = Normal
	e.Seq = 0
}

func (e *Envelope) SetReturned(v bool) { e.returned = v }
func (e *Envelope) IsReturned() bool   { return e.returned }
