package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxLocalKeys = 10000

type localEntry struct {
	limiter  *rate.Limiter
	limit    int
	lastSeen time.Time
}

// LocalLimiter is the in-process fallback used when Redis is not configured.
// Each key gets a token bucket that refills limit tokens per window.
type LocalLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*localEntry
	now     func() time.Time
}

func NewLocalLimiter(window time.Duration) *LocalLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &LocalLimiter{
		window:  window,
		entries: make(map[string]*localEntry),
		now:     time.Now,
	}
}

func (l *LocalLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || e.limit != limit {
		if len(l.entries) >= maxLocalKeys {
			l.sweep(now)
		}
		every := l.window / time.Duration(limit)
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(every), limit), limit: limit}
		l.entries[key] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		return true, int(e.limiter.TokensAt(now)), now.Add(l.window), nil
	}

	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, 0, now.Add(delay), nil
}

// sweep drops buckets idle long enough to have refilled completely.
func (l *LocalLimiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.window {
			delete(l.entries, k)
		}
	}
}
