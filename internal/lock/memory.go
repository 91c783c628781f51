package lock

import (
	"context"
	"sync"
)

// MemoryLocker only excludes callers within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Backend() string { return "memory" }

func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return false, nil
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return true, fn(ctx)
}
