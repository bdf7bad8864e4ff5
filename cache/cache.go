// Package cache implements the Cache contract: a keyed byte store with
// per-entry TTL, backing the Searcher stage's query-result cache (spec
// §4.4).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hermesagent/hermes/core"
)

// Cache is the narrow get/put contract. Reads and writes are independent
// per key; concurrent writers to the same key may race, and the last write
// wins (spec §5) — acceptable since values are a deterministic function of
// the key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds the searcher stage's cache key: SHA-256(normalize(query) ||
// language || "full") per spec §4.4 step 1.
func Key(query, language string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeQuery(query)))
	h.Write([]byte(language))
	h.Write([]byte("full"))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeQuery lowercases and collapses surrounding whitespace so
// equivalent queries share a cache key.
func NormalizeQuery(query string) string {
	return trimAndLower(query)
}

func trimAndLower(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	b := []byte(s[start:end])
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// New picks Redis when addr is non-empty, else an in-process MemoryCache
// (SPEC_FULL §3: HERMES_REDIS_ADDR selects the backend).
func New(addr string) Cache {
	if addr == "" {
		return NewMemoryCache()
	}
	return NewRedisCache(addr)
}

// entry is one cached value with its absolute expiry.
type entry struct {
	value  []byte
	expiry time.Time
}

// MemoryCache is a process-local TTL map, the default backend for a single
// CLI invocation.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiry) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiry: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// RedisCache backs Cache with go-redis, for sharing query results across
// processes/runs (opted into via HERMES_REDIS_ADDR).
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.NewError("cache.Get", core.KindUpstreamUnavailable, err)
	}
	return val, true, nil
}

func (r *RedisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return core.NewError("cache.Put", core.KindUpstreamUnavailable, err)
	}
	return nil
}

// MarshalHits/UnmarshalHits adapt []core.Hit to the Cache's []byte contract.
func MarshalHits(hits []core.Hit) ([]byte, error) {
	return json.Marshal(hits)
}

func UnmarshalHits(data []byte) ([]core.Hit, error) {
	var hits []core.Hit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}
