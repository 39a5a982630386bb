package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestBurstThenRefill(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1000, 0)
	if !l.Allow("a", now) || !l.Allow("a", now) {
		t.Fatalf("burst of 2 should pass")
	}
	if l.Allow("a", now) {
		t.Fatalf("third request in the same instant should be limited")
	}
	if !l.Allow("b", now) {
		t.Fatalf("keys must not share buckets")
	}
	if !l.Allow("a", now.Add(time.Second)) {
		t.Fatalf("token should refill after one second")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if !l.Allow("x", time.Now()) {
		t.Fatalf("nil limiter should allow")
	}
	if New(0, 1, 0) != nil || New(1, 0, 0) != nil {
		t.Fatalf("invalid args should give nil")
	}
	if l.Len() != 0 {
		t.Fatalf("nil limiter tracks nothing")
	}
}

func TestIdleKeysAreSwept(t *testing.T) {
	l := New(100, 100, time.Minute)
	start := time.Unix(0, 0)
	l.Allow("stale", start)

	later := start.Add(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.Allow(fmt.Sprintf("k%d", i%4), later)
	}
	if l.Len() != 4 {
		t.Fatalf("expected stale key to be swept, have %d keys", l.Len())
	}
}
