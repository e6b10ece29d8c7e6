package quotecache

import (
	"context"
	"sync"
	"time"
)

type memItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process backend with lazy eviction and optional compaction.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{items: make(map[string]memItem), now: now}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	item, ok := b.items[key]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !b.now().Before(item.expiresAt) {
		b.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := b.items[key]; ok && !b.now().Before(cur.expiresAt) {
			delete(b.items, key)
		}
		b.mu.Unlock()
		return nil, false, nil
	}
	return item.data, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := append([]byte(nil), value...)
	b.mu.Lock()
	b.items[key] = memItem{data: data, expiresAt: b.now().Add(ttl)}
	b.mu.Unlock()
	return nil
}

// Compact removes every expired item and returns how many were dropped.
func (b *MemoryBackend) Compact() int {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k, item := range b.items {
		if !now.Before(item.expiresAt) {
			delete(b.items, k)
			n++
		}
	}
	return n
}

// Len reports the number of physically stored items, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// RunCompactor calls Compact every interval until ctx is done.
func (b *MemoryBackend) RunCompactor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Compact()
		}
	}
}
