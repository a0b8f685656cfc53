package cacheutil

import (
	"container/list"
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

type memoryEntry struct {
	key       string
	value     json.RawMessage
	expiresAt time.Time
	noExpire  bool
	elem      *list.Element
}

// Memory is the in-memory tier of the cache group: a bounded mapping
// from URN string to (value, expires_at), evicted by an O(1) sieve that
// drops expired entries first and falls back to oldest-insertion order.
// This is the teacher's TTLCache reworked from LRU-on-read to the
// spec's insertion-order sieve: Get no longer promotes an entry, since
// the eviction policy here is about insertion age, not access recency.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*memoryEntry
	order      *list.List
	hits       int
	misses     int
}

// NewMemory builds a bounded in-memory cache tier. maxEntries is
// clamped to a minimum of 1.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Memory{
		maxEntries: maxEntries,
		entries:    make(map[string]*memoryEntry),
		order:      list.New(),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Get(_ context.Context, key string) GetResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return GetResult{}
	}
	if !e.noExpire {
		remaining := time.Until(e.expiresAt)
		if remaining <= 0 {
			m.removeLocked(e)
			m.misses++
			return GetResult{}
		}
		m.hits++
		return GetResult{Value: e.value, Found: true, TTL: ResolvedTTL{Kind: ResolvedSeconds, Seconds: int(remaining/time.Second) + 1}}
	}
	m.hits++
	return GetResult{Value: e.value, Found: true, TTL: ResolvedTTL{Kind: ResolvedNoExpire}}
}

func (m *Memory) GetBatch(ctx context.Context, keys []string) map[string]GetResult {
	out := make(map[string]GetResult, len(keys))
	for _, k := range keys {
		if r := m.Get(ctx, k); r.Found {
			out[k] = r
		}
	}
	return out
}

func (m *Memory) Set(_ context.Context, key string, value json.RawMessage, ttl ResolvedTTL) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl.Kind == ResolvedNoCache {
		return
	}

	noExpire := ttl.Kind == ResolvedNoExpire
	var expiresAt time.Time
	if !noExpire {
		expiresAt = time.Now().Add(time.Duration(ttl.Seconds) * time.Second)
	}

	if e, ok := m.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		e.noExpire = noExpire
		m.order.MoveToBack(e.elem)
		return
	}

	e := &memoryEntry{key: key, value: value, expiresAt: expiresAt, noExpire: noExpire}
	e.elem = m.order.PushBack(e)
	m.entries[key] = e
	m.evictIfNeededLocked()
}

func (m *Memory) evictIfNeededLocked() {
	if len(m.entries) <= m.maxEntries {
		return
	}

	now := time.Now()
	for elem := m.order.Front(); elem != nil && len(m.entries) > m.maxEntries; {
		next := elem.Next()
		e := elem.Value.(*memoryEntry)
		if !e.noExpire && now.After(e.expiresAt) {
			m.removeLocked(e)
		}
		elem = next
	}

	for len(m.entries) > m.maxEntries {
		front := m.order.Front()
		if front == nil {
			break
		}
		m.removeLocked(front.Value.(*memoryEntry))
	}
}

func (m *Memory) removeLocked(e *memoryEntry) {
	delete(m.entries, e.key)
	m.order.Remove(e.elem)
}

func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	m.order = list.New()
}

// Stats reports cumulative hit/miss counters for the health/stats
// endpoint.
func (m *Memory) Stats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}
