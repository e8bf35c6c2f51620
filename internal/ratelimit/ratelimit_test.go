package ratelimit

import (
	"testing"

	"github.com/coachpo/eventloop/internal/event"
)

type sampleEvent struct{}

func TestNilRateDisablesLimiting(t *testing.T) {
	l := New(0, 0)
	cat := event.CategoryOf[sampleEvent]()
	for i := 0; i < 100; i++ {
		if !l.Allow(cat) {
			t.Fatalf("expected disabled limiter to always allow")
		}
	}
}

func TestLimiterEnforcesBurst(t *testing.T) {
	l := New(1, 2)
	cat := event.CategoryOf[sampleEvent]()
	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow(cat) {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("expected exactly burst (2) admissions immediately, got %d", allowed)
	}
}

func TestLimiterIsPerCategory(t *testing.T) {
	type other struct{}
	l := New(1, 1)
	a := event.CategoryOf[sampleEvent]()
	b := event.CategoryOf[other]()

	if !l.Allow(a) {
		t.Fatalf("expected first admission for category a to succeed")
	}
	if !l.Allow(b) {
		t.Fatalf("expected independent bucket for category b to succeed")
	}
	if l.Allow(a) {
		t.Fatalf("expected category a bucket to be exhausted")
	}
}
