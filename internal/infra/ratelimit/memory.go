package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"docsign/internal/domain"
)

var ErrCapacityExceeded = errors.New("rate limiter capacity exceeded")

type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// MemoryLimiter counts requests per key in fixed windows. It holds at most
// MaxKeys live windows; expired windows are reclaimed before refusing a key.
type MemoryLimiter struct {
	clock   func() time.Time
	keyCap  int
	mu      sync.Mutex
	windows map[string]window
}

type window struct {
	hits    int
	resetAt time.Time
}

func NewMemoryLimiter(cfg MemoryLimiterConfig) *MemoryLimiter {
	clock := cfg.Now
	if clock == nil {
		clock = time.Now
	}
	keyCap := cfg.MaxKeys
	if keyCap <= 0 {
		keyCap = 10000
	}
	return &MemoryLimiter{clock: clock, keyCap: keyCap, windows: map[string]window{}}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	at := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, live := m.windows[key]
	if live && at.After(w.resetAt) {
		live = false
	}
	if !live {
		delete(m.windows, key)
		if len(m.windows) >= m.keyCap && m.reclaim(at) == 0 {
			return domain.RateLimitDecision{}, ErrCapacityExceeded
		}
		w = window{resetAt: at.Add(period)}
	}
	if w.hits < limit {
		w.hits++
	} else {
		w.hits = limit + 1
	}
	m.windows[key] = w
	return decide(limit, int64(w.hits), w.resetAt), nil
}

// reclaim drops expired windows and reports how many were removed.
func (m *MemoryLimiter) reclaim(at time.Time) int {
	removed := 0
	for key, w := range m.windows {
		if at.After(w.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

func unlimited(limit int) domain.RateLimitDecision {
	return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}
}

// decide turns a post-increment hit count into a decision.
func decide(limit int, hits int64, resetAt time.Time) domain.RateLimitDecision {
	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   hits <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
