package workflow

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	codeKindCompletion = "completion"
	codeKindOnboarding = "onboarding"
)

// AttemptLimiter throttles code guesses per (job, code kind) with a token
// bucket. There is no permanent lockout; tokens refill over time. A bucket
// left idle long enough to refill completely is dropped.
type AttemptLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*attemptBucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type attemptBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewAttemptLimiter(perMinute, burst int, now func() time.Time) *AttemptLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	if burst <= 0 {
		burst = perMinute
	}
	if now == nil {
		now = time.Now
	}
	every := time.Minute / time.Duration(perMinute)
	return &AttemptLimiter{
		limiters: make(map[string]*attemptBucket),
		limit:    rate.Every(every),
		burst:    burst,
		idle:     every * time.Duration(burst),
		now:      now,
	}
}

func (l *AttemptLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	b, exists := l.limiters[key]
	if !exists {
		b = &attemptBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = b
	}
	b.seen = now
	return b.limiter
}

// sweep drops buckets that have been full for a while; a new bucket behaves
// the same. Callers hold l.mu.
func (l *AttemptLimiter) sweep(now time.Time) {
	for key, b := range l.limiters {
		if now.Sub(b.seen) >= l.idle {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// Len reports how many buckets are tracked.
func (l *AttemptLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Allow spends one attempt for the job's code of the given kind.
func (l *AttemptLimiter) Allow(jobID, kind string) bool {
	now := l.now()
	return l.getLimiter(jobID+":"+kind, now).AllowN(now, 1)
}

// Forget drops the bucket once the code can no longer be guessed.
func (l *AttemptLimiter) Forget(jobID, kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, jobID+":"+kind)
}
