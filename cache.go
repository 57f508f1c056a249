package strata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores raw result sets keyed by statement. Entries are opaque to
// the store: rows go in post-scan, pre-cast, so hydration behaves the same
// whether a result came from the store or the cache.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the rows stored under key, reporting a miss with ok=false.
	Get(ctx context.Context, key string) (rows []map[string]any, ok bool, err error)
	// Set stores the rows under key for the given TTL. A zero TTL never
	// expires.
	Set(ctx context.Context, key string, rows []map[string]any, ttl time.Duration) error
	// DeletePrefix drops every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// cacheKey builds the cache key of a statement: entity table, statement
// text and bound arguments. Table-prefixed so mutations can invalidate an
// entity's entries without touching the rest.
func cacheKey(table, query string, args []any) string {
	return fmt.Sprintf("%s:%s|%v", table, query, args)
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is an in-process Cache. Rows are serialized with msgpack on
// Set and decoded on Get, so cached rows never alias live record state.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, key string) ([]map[string]any, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	var rows []map[string]any
	if err := msgpack.Unmarshal(e.data, &rows); err != nil {
		return nil, false, fmt.Errorf("strata: decoding cached rows: %w", err)
	}
	return rows, true, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(_ context.Context, key string, rows []map[string]any, ttl time.Duration) error {
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return fmt.Errorf("strata: encoding rows for cache: %w", err)
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// DeletePrefix implements Cache.
func (m *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Len returns the number of live entries, expired ones included until they
// are read or invalidated.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
