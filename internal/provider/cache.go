package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// CacheStore is the persistence behind the provider cache. Implementations
// exist in memory and on Redis.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached wraps a provider with a content-addressed TTL cache. Concurrent
// identical requests collapse into one upstream call via singleflight.
type Cached struct {
	inner   LanguageProvider
	store   CacheStore
	ttl     time.Duration
	group   singleflight.Group
	metrics *prometheus.Metrics
}

// NewCached wraps inner with the given store and TTL.
func NewCached(inner LanguageProvider, store CacheStore, ttl time.Duration, metrics *prometheus.Metrics) *Cached {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if metrics == nil {
		metrics = prometheus.NewNopMetrics()
	}
	return &Cached{inner: inner, store: store, ttl: ttl, metrics: metrics}
}

// Name implements LanguageProvider.
func (c *Cached) Name() string { return c.inner.Name() }

// cacheKey hashes the operation, language and content into a stable key.
func cacheKey(operation, language string, content []string) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(language))
	for _, part := range content {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	return "nlu:provider:" + operation + ":" + language + ":" + hex.EncodeToString(h.Sum(nil))
}

// Tokenize implements LanguageProvider with caching.
func (c *Cached) Tokenize(ctx context.Context, texts []string, language string) ([][]string, error) {
	var out [][]string
	err := c.through(ctx, cacheKey("tokenize", language, texts), &out, func() (interface{}, error) {
		return c.inner.Tokenize(ctx, texts, language)
	})
	return out, err
}

// Vectorize implements LanguageProvider with caching.
func (c *Cached) Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error) {
	var out [][]float64
	err := c.through(ctx, cacheKey("vectorize", language, tokens), &out, func() (interface{}, error) {
		return c.inner.Vectorize(ctx, tokens, language)
	})
	return out, err
}

// GenerateJunkWords implements LanguageProvider. Junk words are sampled,
// not derived, so they bypass the cache.
func (c *Cached) GenerateJunkWords(ctx context.Context, vocabulary []string, language string) ([]string, error) {
	return c.inner.GenerateJunkWords(ctx, vocabulary, language)
}

func (c *Cached) through(ctx context.Context, key string, out interface{}, fetch func() (interface{}, error)) error {
	if blob, ok, err := c.store.Get(ctx, key); err == nil && ok {
		if err := json.Unmarshal(blob, out); err == nil {
			c.metrics.ProviderCacheHits.Inc()
			return nil
		}
	}
	c.metrics.ProviderCacheMisses.Inc()

	blob, err, _ := c.group.Do(key, func() (interface{}, error) {
		fresh, err := fetch()
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(fresh)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode provider result for cache")
		}
		// Store failures only cost a future cache miss.
		_ = c.store.Set(ctx, key, encoded, c.ttl)
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(blob.([]byte), out)
}

var _ LanguageProvider = (*Cached)(nil)

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// memoryEntry is one cached value with its expiry.
type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is a process-local CacheStore with lazy expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements CacheStore.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expires) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements CacheStore.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New(errors.ErrCodeValidation, "cache key must not be empty")
	}
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expires: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

var _ CacheStore = (*MemoryStore)(nil)
