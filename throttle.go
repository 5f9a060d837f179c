package platform

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedThrottle rate limits by caller key, usually the client address. It
// fronts the login and forgot-password endpoints so credential stuffing
// burns out quickly without touching legitimate traffic.
type KeyedThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	limit    rate.Limit
	burst    int
	maxIdle  time.Duration
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedThrottle allows roughly limit events per second with the given
// burst per key.
func NewKeyedThrottle(limit rate.Limit, burst int) *KeyedThrottle {
	return &KeyedThrottle{
		limiters: map[string]*throttleEntry{},
		limit:    limit,
		burst:    burst,
		maxIdle:  10 * time.Minute,
	}
}

// Allow reports whether the key may proceed right now.
func (t *KeyedThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.sweep(now)

	entry, ok := t.limiters[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// sweep drops limiters nobody has touched lately; called under the lock.
func (t *KeyedThrottle) sweep(now time.Time) {
	for key, entry := range t.limiters {
		if now.Sub(entry.lastSeen) > t.maxIdle {
			delete(t.limiters, key)
		}
	}
}
