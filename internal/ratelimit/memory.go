package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Limiter = (*MemoryLimiter)(nil)

// MemoryLimiter keeps windows in process memory. Suitable for tests and
// single-instance deployments; multi-instance deployments need RedisLimiter
// for a shared view of the windows.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates an empty in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow increments the subject's window under the limiter's lock, resetting
// the window when its boundary has passed.
func (l *MemoryLimiter) Allow(_ context.Context, subjectKey string, policy Policy) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := windowKey(policy, subjectKey)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= policy.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++

	remaining := policy.Limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= policy.Limit,
		Remaining: remaining,
		ResetAt:   w.start.Add(policy.Window),
	}, nil
}
