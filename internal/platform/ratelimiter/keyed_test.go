package ratelimiter

import (
	"testing"
	"time"
)

func TestAllowEnforcesBurst(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Now()
	if !l.Allow("10.0.0.1", now) || !l.Allow("10.0.0.1", now) {
		t.Fatal("burst of 2 should admit two requests")
	}
	if l.Allow("10.0.0.1", now) {
		t.Fatal("third request within the same instant should be rejected")
	}
	// A different key has its own bucket.
	if !l.Allow("10.0.0.2", now) {
		t.Fatal("separate key should not share the exhausted bucket")
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	if !l.Allow("k", now) {
		t.Fatal("first request should pass")
	}
	if l.Allow("k", now) {
		t.Fatal("bucket should be empty")
	}
	if !l.Allow("k", now.Add(1100*time.Millisecond)) {
		t.Fatal("bucket should refill after ~1s at 1 rps")
	}
}

func TestIdleBucketsSwept(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	l.Allow("idle", now)
	if l.Len() != 1 {
		t.Fatalf("expected one tracked bucket, got %d", l.Len())
	}
	// The next request past the sweep deadline drops buckets idle for
	// longer than the TTL.
	l.Allow("active", now.Add(2*time.Minute))
	if l.Len() != 1 {
		t.Fatalf("idle bucket should have been swept, got %d tracked", l.Len())
	}
}

func TestNilAndEmptyKeyAlwaysAllow(t *testing.T) {
	var l *Keyed
	if !l.Allow("k", time.Now()) {
		t.Fatal("nil limiter must allow")
	}
	if !New(1, 1, 0).Allow("  ", time.Now()) {
		t.Fatal("empty key must allow")
	}
}
