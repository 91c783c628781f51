package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/songgift/internal/clock"
	"golang.org/x/time/rate"
)

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryBucket keeps one limiter per key inside this process.
type MemoryBucket struct {
	clock   clock.Clock
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryBucket(c clock.Clock) *MemoryBucket {
	if c == nil {
		c = clock.New()
	}
	return &MemoryBucket{
		clock:   c,
		entries: make(map[string]*memoryEntry),
	}
}

func (m *MemoryBucket) Allow(_ context.Context, key string, r float64, burst int) (*Result, error) {
	if err := validate(key, r, burst); err != nil {
		return nil, err
	}

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.limiter.Limit() != rate.Limit(r) || entry.limiter.Burst() != burst {
		entry = &memoryEntry{limiter: rate.NewLimiter(rate.Limit(r), burst)}
		m.entries[key] = entry
	}
	entry.lastSeen = now

	allowed := entry.limiter.AllowN(now, 1)
	return newResult(allowed, entry.limiter.TokensAt(now), r, burst, now), nil
}

// Sweep drops keys that have not been seen within idle.
func (m *MemoryBucket) Sweep(idle time.Duration) int {
	cutoff := m.clock.Now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}
