package queue

import (
	"testing"

	"github.com/coachpo/eventloop/internal/event"
)

func TestPushAdmitsUntilCapacityThenDrops(t *testing.T) {
	q := New(2, nil)
	if !q.Push(&event.Envelope{}) {
		t.Fatalf("expected first push to be admitted")
	}
	if !q.Push(&event.Envelope{}) {
		t.Fatalf("expected second push to be admitted")
	}
	if q.Push(&event.Envelope{}) {
		t.Fatalf("expected third push to be tail-dropped at capacity")
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
}

func TestNewDefaultsNonPositiveMaxSize(t *testing.T) {
	q := New(0, nil)
	if q.MaxSize() != defaultMaxSize {
		t.Fatalf("expected default max size %d, got %d", defaultMaxSize, q.MaxSize())
	}
	q2 := New(-5, nil)
	if q2.MaxSize() != defaultMaxSize {
		t.Fatalf("expected default max size for negative input, got %d", q2.MaxSize())
	}
}

func TestPopBatchPreservesFIFOOrder(t *testing.T) {
	q := New(10, nil)
	for i := 0; i < 5; i++ {
		q.Push(&event.Envelope{Payload: i})
	}
	batch := q.PopBatch(3)
	if len(batch) != 3 {
		t.Fatalf("expected batch of 3, got %d", len(batch))
	}
	for i, env := range batch {
		if env.Payload.(int) != i {
			t.Fatalf("expected FIFO order, got %v at index %d", env.Payload, i)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", q.Len())
	}
	rest := q.PopBatch(10)
	if len(rest) != 2 || rest[0].Payload.(int) != 3 || rest[1].Payload.(int) != 4 {
		t.Fatalf("expected remaining items 3,4 in order, got %v", rest)
	}
}

func TestPopBatchOnEmptyReturnsNil(t *testing.T) {
	q := New(4, nil)
	if batch := q.PopBatch(3); batch != nil {
		t.Fatalf("expected nil batch from empty queue, got %v", batch)
	}
	if batch := q.PopBatch(0); batch != nil {
		t.Fatalf("expected nil batch for n<=0, got %v", batch)
	}
}

func TestSeqAssignedOnlyOnAdmission(t *testing.T) {
	q := New(1, nil)
	a := &event.Envelope{}
	if !q.Push(a) {
		t.Fatalf("expected admission")
	}
	if a.Seq == 0 {
		t.Fatalf("expected non-zero seq on admitted envelope")
	}

	b := &event.Envelope{Seq: 42}
	if q.Push(b) {
		t.Fatalf("expected drop at capacity")
	}
	if b.Seq != 42 {
		t.Fatalf("expected dropped envelope's seq left untouched, got %d", b.Seq)
	}
}

func TestSeqMonotonicAcrossPushes(t *testing.T) {
	q := New(10, nil)
	var last uint64
	for i := 0; i < 5; i++ {
		env := &event.Envelope{}
		q.Push(env)
		if env.Seq <= last {
			t.Fatalf("expected strictly increasing seq, got %d after %d", env.Seq, last)
		}
		last = env.Seq
	}
}

func TestSetMaxSizeIsNotRetroactive(t *testing.T) {
	q := New(5, nil)
	for i := 0; i < 4; i++ {
		q.Push(&event.Envelope{})
	}
	q.SetMaxSize(2)
	if q.Len() != 4 {
		t.Fatalf("expected existing items left in place, got len %d", q.Len())
	}
	if q.Push(&event.Envelope{}) {
		t.Fatalf("expected new pushes to respect the lowered capacity")
	}
}

func TestSetMaxSizeNonPositiveResetsToDefault(t *testing.T) {
	q := New(5, nil)
	q.SetMaxSize(0)
	if q.MaxSize() != defaultMaxSize {
		t.Fatalf("expected default max size, got %d", q.MaxSize())
	}
}

func TestPushSignalsWakeNonBlocking(t *testing.T) {
	wake := make(chan struct{}, 1)
	q := New(4, wake)
	q.Push(&event.Envelope{})

	select {
	case <-wake:
	default:
		t.Fatalf("expected wake signal on successful push")
	}

	// A push whose wake channel has no ready receiver must not block.
	wake2 := make(chan struct{})
	q2 := New(4, wake2)
	done := make(chan struct{})
	go func() {
		q2.Push(&event.Envelope{})
		close(done)
	}()
	<-done
}

func TestPushDoesNotSignalOnDrop(t *testing.T) {
	wake := make(chan struct{}, 2)
	q := New(1, wake)
	q.Push(&event.Envelope{})
	<-wake
	q.Push(&event.Envelope{})

	select {
	case <-wake:
		t.Fatalf("expected no wake signal on dropped push")
	default:
	}
}
