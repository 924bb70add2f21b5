package workflow

import (
	"fmt"
	"testing"
	"time"
)

func TestAttemptLimiterDropsIdleBuckets(t *testing.T) {
	clock := &fakeClock{now: startTime}
	l := NewAttemptLimiter(1, 2, clock.Now)

	for i := 0; i < 50; i++ {
		l.Allow(fmt.Sprintf("job-%d", i), codeKindCompletion)
	}
	if !l.Allow("busy", codeKindOnboarding) || !l.Allow("busy", codeKindOnboarding) {
		t.Fatal("fresh bucket should allow its burst")
	}
	if l.Allow("busy", codeKindOnboarding) {
		t.Fatal("burst exceeded")
	}
	if got := l.Len(); got != 51 {
		t.Fatalf("buckets = %d, want 51", got)
	}

	clock.Advance(2 * time.Minute)
	if !l.Allow("busy", codeKindOnboarding) {
		t.Fatal("bucket did not refill")
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("buckets after idle sweep = %d, want only the active one", got)
	}
}

func TestAttemptLimiterKeepsRecentBuckets(t *testing.T) {
	clock := &fakeClock{now: startTime}
	l := NewAttemptLimiter(1, 2, clock.Now)

	l.Allow("j1", codeKindCompletion)
	l.Allow("j1", codeKindCompletion)
	clock.Advance(90 * time.Second)
	l.Allow("j2", codeKindCompletion)
	clock.Advance(45 * time.Second)

	// j1 was last seen 135s ago and is dropped; j2 keeps its spent token.
	l.Allow("j3", codeKindCompletion)
	if got := l.Len(); got != 2 {
		t.Fatalf("buckets = %d, want j2 and j3", got)
	}
	if !l.Allow("j2", codeKindCompletion) {
		t.Fatal("j2 should still have one token")
	}
}

func TestUnknownJobDoesNotKeepBucket(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ValidateOnboardingCode(ctx, "no-such-job", "123456")
	assertCode(t, err, ErrNotFound)
	_, err = f.svc.ValidateCompletionCode(ctx, "no-such-job", "123456")
	assertCode(t, err, ErrNotFound)
	if got := f.svc.attempts.Len(); got != 0 {
		t.Fatalf("buckets = %d, want 0", got)
	}
}
