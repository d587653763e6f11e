package rate

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a request keyed by key may proceed. When it may
// not, retryAfter says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// WindowLimiter counts hits per key in a fixed in-memory window. It guards
// login attempts, where the key is email plus client ip.
type WindowLimiter struct {
	mu              sync.Mutex
	limit           int
	window          time.Duration
	items           map[string]*windowEntry
	lastCleanup     time.Time
	cleanupInterval time.Duration
	now             func() time.Time
}

type windowEntry struct {
	start time.Time
	count int
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:           limit,
		window:          window,
		items:           make(map[string]*windowEntry),
		lastCleanup:     time.Now(),
		cleanupInterval: window,
		now:             time.Now,
	}
}

// Hit records one attempt for key and reports whether it is still within
// the limit.
func (l *WindowLimiter) Hit(key string) bool {
	ok, _ := l.hit(key)
	return ok
}

func (l *WindowLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	ok, retry := l.hit(key)
	return ok, retry, nil
}

// Reset forgets key, e.g. after a successful login.
func (l *WindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.items, key)
}

func (l *WindowLimiter) hit(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanup(now)

	entry, ok := l.items[key]
	if !ok {
		l.items[key] = &windowEntry{start: now, count: 1}
		return true, 0
	}

	if now.Sub(entry.start) >= l.window {
		entry.start = now
		entry.count = 1
		return true, 0
	}

	if entry.count >= l.limit {
		return false, entry.start.Add(l.window).Sub(now)
	}

	entry.count++
	return true, 0
}

func (l *WindowLimiter) maybeCleanup(now time.Time) {
	if l.cleanupInterval <= 0 || l.window <= 0 {
		return
	}
	if !l.lastCleanup.IsZero() && now.Sub(l.lastCleanup) < l.cleanupInterval {
		return
	}
	for key, entry := range l.items {
		if now.Sub(entry.start) >= l.window {
			delete(l.items, key)
		}
	}
	l.lastCleanup = now
}
