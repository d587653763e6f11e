package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per key. It backs the API limiter
// when no Redis is configured, so limits are per process.
type KeyedLimiter struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	buckets  map[string]*bucket
	lastSeen time.Time
	now      func() time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewKeyedLimiter allows perMinute requests per key with a burst of the
// same size.
func NewKeyedLimiter(perMinute int) *KeyedLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &KeyedLimiter{
		rate:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: 10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	l.evictIdle(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute, nil
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (l *KeyedLimiter) evictIdle(now time.Time) {
	if now.Sub(l.lastSeen) < l.idleTTL {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.seen) >= l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSeen = now
}
