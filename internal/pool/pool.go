// Package pool lends envelopes (and other PooledObject values) out of a
// bounded set of long-lived worker goroutines, one object per worker at a
// time, so the dispatcher's hot path avoids allocating a fresh *event.Envelope
// per publish under steady load.
package pool

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	concpool "github.com/sourcegraph/conc/pool"
)

var errPoolClosed = errors.New("pool: closed")

// Pool manages a bounded set of reusable objects by handing each request off
// to a long-lived worker goroutine. Each worker owns exactly one object at a
// time, so the pool never lends out more than its capacity.
type Pool struct {
	name      string
	factory   func() PooledObject
	requests  chan *poolRequest
	stop      chan struct{}
	leases    sync.Map // map[uintptr]*lease
	workers   *concpool.Pool
	closed    atomic.Bool
	capacity  int
	waitGroup sync.WaitGroup
}

type poolRequest struct {
	ctx    context.Context
	result chan PooledObject
}

type lease struct {
	obj      PooledObject
	returnCh chan PooledObject
}

func newPoolRequest(ctx context.Context) *poolRequest {
	if ctx == nil {
		ctx = context.Background()
	}
	return &poolRequest{
		ctx:    ctx,
		result: make(chan PooledObject, 1),
	}
}

// New constructs a pool of capacity reusable objects produced by factory.
func New(name string, capacity int, factory func() PooledObject) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool %s: capacity must be positive", name)
	}
	if factory == nil {
		return nil, fmt.Errorf("pool %s: factory required", name)
	}
	p := &Pool{
		name:     name,
		factory:  factory,
		requests: make(chan *poolRequest),
		stop:     make(chan struct{}),
		capacity: capacity,
		workers:  concpool.New().WithMaxGoroutines(capacity),
	}
	for i := 0; i < capacity; i++ {
		p.waitGroup.Add(1)
		p.workers.Go(p.worker)
	}
	return p, nil
}

func (p *Pool) worker() {
	defer p.waitGroup.Done()

	obj := p.factory()
	if obj == nil {
		panic(fmt.Sprintf("pool %s: factory returned nil object", p.name))
	}
	obj.Reset()
	obj.SetReturned(true)

	for {
		req, ok := p.nextRequest()
		if !ok {
			return
		}
		l := p.checkout(obj)
		if l == nil {
			continue
		}
		if !p.deliver(req, obj) {
			p.cancelLease(l)
			obj.SetReturned(true)
			continue
		}
		ret, ok := p.waitForReturn(l)
		if !ok {
			return
		}
		obj = ret
		obj.Reset()
		obj.SetReturned(true)
	}
}

func (p *Pool) nextRequest() (*poolRequest, bool) {
	select {
	case <-p.stop:
		return nil, false
	case req, ok := <-p.requests:
		if !ok {
			return nil, false
		}
		return req, true
	}
}

func (p *Pool) deliver(req *poolRequest, obj PooledObject) bool {
	if req == nil {
		return false
	}
	for {
		select {
		case <-p.stop:
			return false
		case <-req.ctx.Done():
			return false
		case req.result <- obj:
			obj.SetReturned(false)
			return true
		}
	}
}

func (p *Pool) checkout(obj PooledObject) *lease {
	l := &lease{
		obj:      obj,
		returnCh: make(chan PooledObject, 1),
	}
	p.leases.Store(pointerKey(obj), l)
	return l
}

func (p *Pool) cancelLease(l *lease) {
	if l == nil {
		return
	}
	p.leases.Delete(pointerKey(l.obj))
	close(l.returnCh)
}

func (p *Pool) waitForReturn(l *lease) (PooledObject, bool) {
	for {
		select {
		case <-p.stop:
			// Keep waiting so we never leak the object; Close waits for all
			// callers to return what they hold.
		case returned, ok := <-l.returnCh:
			p.leases.Delete(pointerKey(l.obj))
			if !ok {
				return nil, false
			}
			return returned, true
		}
	}
}

// Get blocks until an object is available or ctx is done.
func (p *Pool) Get(ctx context.Context) (PooledObject, error) {
	if p.closed.Load() {
		return nil, errPoolClosed
	}

	req := newPoolRequest(ctx)
	select {
	case <-p.stop:
		return nil, errPoolClosed
	case p.requests <- req:
	case <-req.ctx.Done():
		return nil, req.ctx.Err()
	}

	select {
	case <-p.stop:
		return nil, errPoolClosed
	case obj := <-req.result:
		return obj, nil
	case <-req.ctx.Done():
		return nil, req.ctx.Err()
	}
}

// TryGet returns immediately with ok=false if no worker is free.
func (p *Pool) TryGet() (obj PooledObject, ok bool, err error) {
	if p.closed.Load() {
		return nil, false, errPoolClosed
	}

	req := newPoolRequest(context.Background())

	select {
	case <-p.stop:
		return nil, false, errPoolClosed
	case p.requests <- req:
	default:
		return nil, false, nil
	}

	select {
	case <-p.stop:
		return nil, false, errPoolClosed
	case obj := <-req.result:
		return obj, true, nil
	}
}

// Put returns obj to its worker. Returns an error on double-put or an
// object never checked out from this pool.
func (p *Pool) Put(obj PooledObject) error {
	if obj == nil {
		return fmt.Errorf("pool %s: nil object returned", p.name)
	}
	key := pointerKey(obj)
	value, ok := p.leases.Load(key)
	if !ok {
		return fmt.Errorf("pool %s: double put detected for %T", p.name, obj)
	}
	l, ok := value.(*lease)
	if !ok {
		p.leases.Delete(key)
		return fmt.Errorf("pool %s: invalid lease type %T", p.name, value)
	}
	obj.Reset()
	obj.SetReturned(true)
	select {
	case l.returnCh <- obj:
		return nil
	default:
		p.leases.Delete(key)
		return fmt.Errorf("pool %s: unexpected lease state for %T", p.name, obj)
	}
}

// Close stops accepting new checkouts and waits for all workers to exit.
// Outstanding leases must be returned via Put before Close can complete.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.stop)
	p.leases.Range(func(_, value any) bool {
		if l, ok := value.(*lease); ok {
			close(l.returnCh)
		}
		return true
	})
	p.workers.Wait()
	p.waitGroup.Wait()
}

func pointerKey(obj PooledObject) uintptr {
	if obj == nil {
		return 0
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		panic(fmt.Sprintf("pool object must be pointer, got %T", obj))
	}
	return rv.Pointer()
}
