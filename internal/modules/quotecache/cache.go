// README: Generic TTL cache for quotes and route plans over a pluggable byte backend.
package quotecache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"cargoquote/internal/metrics"
)

// Entry wraps a cached value with its validity window.
type Entry[T any] struct {
	Value     T         `json:"value"`
	CachedAt  time.Time `json:"cachedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the entry may be served at now. There is no soft expiry.
func (e Entry[T]) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Backend stores opaque encoded entries. ttl is a physical retention hint; validity
// is always decided from the entry's own ExpiresAt.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Cache is safe for concurrent use as long as the backend is.
type Cache[T any] struct {
	name    string
	backend Backend
	now     func() time.Time
	logger  *zap.Logger
}

func New[T any](name string, backend Backend, logger *zap.Logger, opts ...Option) *Cache[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache[T]{name: name, backend: backend, now: o.now, logger: logger.With(zap.String("cache", name))}
}

// Get returns the cached value for key. Backend and decode failures are logged and
// reported as a miss.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheLookups.WithLabelValues(c.name, "error").Inc()
		metrics.PersistenceFailures.WithLabelValues("cache_get").Inc()
		return zero, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		metrics.CacheLookups.WithLabelValues(c.name, "error").Inc()
		return zero, false
	}
	if !entry.Valid(c.now()) {
		metrics.CacheLookups.WithLabelValues(c.name, "expired").Inc()
		return zero, false
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return entry.Value, true
}

// Put stores value under key for ttl. Write failures degrade to a future miss.
func (c *Cache[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()
	raw, err := json.Marshal(Entry[T]{Value: value, CachedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		c.logger.Error("cache entry not encodable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		metrics.PersistenceFailures.WithLabelValues("cache_put").Inc()
	}
}

// Key joins discriminating request fields into a canonical cache key.
func Key(parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(norm, "|")
}
