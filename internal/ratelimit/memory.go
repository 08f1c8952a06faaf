package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryBucket is the per-process limiter used when redis is absent or failing.
type MemoryBucket struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	idle    time.Duration
	now     func() time.Time
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{
		entries: make(map[string]*memoryEntry),
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

func (m *MemoryBucket) Allow(_ context.Context, key string, r float64, burst int) (*Result, error) {
	if err := validateBucket(key, r, burst); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evict(now)

	entry, ok := m.entries[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(rate.Limit(r), burst)}
		m.entries[key] = entry
	}
	entry.lastSeen = now

	allowed := entry.limiter.AllowN(now, 1)
	return newResult(allowed, burst, entry.limiter.TokensAt(now), r), nil
}

func (m *MemoryBucket) evict(now time.Time) {
	for key, entry := range m.entries {
		if now.Sub(entry.lastSeen) > m.idle {
			delete(m.entries, key)
		}
	}
}
