// Package cacheutil implements the two-tier cache group (C5) and the
// TTL policy (C6) described in SPEC_FULL.md: a required in-memory
// max-TTL tier fronting zero or more remote tiers (a primary writer and
// optional read-only replicas), with concurrent read fan-out, batched
// lookup, and fire-and-forget remote writes.
package cacheutil

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// GetResult is what a Backend reports for one key: the stored value and
// its remaining TTL at read time, or a miss.
type GetResult struct {
	Value json.RawMessage
	TTL   ResolvedTTL
	Found bool
}

// Backend is the uniform interface the cache group presents over any
// tier: the in-memory cache, or a Redis primary/replica.
type Backend interface {
	Get(ctx context.Context, key string) GetResult
	GetBatch(ctx context.Context, keys []string) map[string]GetResult
	Set(ctx context.Context, key string, value json.RawMessage, ttl ResolvedTTL)
	Clear(ctx context.Context)
	Name() string
}

// Group fans reads out to all backends concurrently and writes
// synchronously to memory, asynchronously to remotes.
type Group struct {
	memory        Backend
	primary       Backend
	replicas      []Backend
	readTimeout   time.Duration
	testBeforeAdd bool
	logger        *slog.Logger
}

// NewGroup builds a cache group. memory must not be nil; primary and
// replicas may be nil/empty for a memory-only deployment.
func NewGroup(memory Backend, primary Backend, replicas []Backend, readTimeout time.Duration, testBeforeAdd bool, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		memory:        memory,
		primary:       primary,
		replicas:      replicas,
		readTimeout:   readTimeout,
		testBeforeAdd: testBeforeAdd,
		logger:        logger,
	}
}

// readBackends returns the read priority order: memory, then primary,
// then replicas.
func (g *Group) readBackends() []Backend {
	backends := make([]Backend, 0, 2+len(g.replicas))
	backends = append(backends, g.memory)
	if g.primary != nil {
		backends = append(backends, g.primary)
	}
	backends = append(backends, g.replicas...)
	return backends
}

// BackendNames reports the configured tiers in read-priority order, for
// the admin health endpoint. A Group with no remote tiers still reports
// the memory tier.
func (g *Group) BackendNames() []string {
	backends := g.readBackends()
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

// Get fans out to all read backends concurrently and returns the
// highest-priority non-miss. A remote hit on a memory miss populates
// the memory tier with the remaining TTL.
func (g *Group) Get(ctx context.Context, key string) GetResult {
	backends := g.readBackends()
	results := make([]GetResult, len(backends))

	var eg errgroup.Group
	for i, b := range backends {
		i, b := i, b
		eg.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, g.readTimeout)
			defer cancel()
			results[i] = b.Get(cctx, key)
			return nil
		})
	}
	_ = eg.Wait()

	for i, r := range results {
		if !r.Found {
			continue
		}
		if i > 0 {
			g.memory.Set(ctx, key, r.Value, r.TTL)
		}
		return r
	}
	return GetResult{}
}

// GetBatch issues one round trip to each backend for all keys, merging
// index-wise with the same memory > primary > replica preference as
// Get. A remote hit backfills the memory tier.
func (g *Group) GetBatch(ctx context.Context, keys []string) map[string]GetResult {
	backends := g.readBackends()
	perBackend := make([]map[string]GetResult, len(backends))

	var eg errgroup.Group
	for i, b := range backends {
		i, b := i, b
		eg.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, g.readTimeout)
			defer cancel()
			perBackend[i] = b.GetBatch(cctx, keys)
			return nil
		})
	}
	_ = eg.Wait()

	merged := make(map[string]GetResult, len(keys))
	for _, key := range keys {
		for i, m := range perBackend {
			r, ok := m[key]
			if !ok || !r.Found {
				continue
			}
			merged[key] = r
			if i > 0 {
				g.memory.Set(ctx, key, r.Value, r.TTL)
			}
			break
		}
	}
	return merged
}

// Set writes synchronously to the memory tier and fires off an
// asynchronous write to the primary remote (if any). Remote write
// failures are logged, never surfaced. When testBeforeAdd is enabled, a
// pre-existing memory entry that disagrees with value blocks the write
// and logs a warning instead of overwriting it.
func (g *Group) Set(ctx context.Context, key string, value json.RawMessage, ttl ResolvedTTL) {
	if ttl.Kind == ResolvedNoCache {
		return
	}

	if g.testBeforeAdd {
		existing := g.memory.Get(ctx, key)
		if existing.Found && !bytes.Equal(existing.Value, value) {
			g.logger.Warn("cache test-before-add mismatch, keeping existing entry",
				"key", key)
			return
		}
	}

	g.memory.Set(ctx, key, value, ttl)

	if g.primary != nil {
		primary := g.primary
		go func() {
			defer func() {
				if r := recover(); r != nil {
					g.logger.Error("panic in fire-and-forget cache write", "recover", r, "backend", primary.Name())
				}
			}()
			primary.Set(context.Background(), key, value, ttl)
		}()
	}
}

// Clear fans clear out to every backend. Used by tests.
func (g *Group) Clear(ctx context.Context) {
	g.memory.Clear(ctx)
	if g.primary != nil {
		g.primary.Clear(ctx)
	}
	for _, r := range g.replicas {
		r.Clear(ctx)
	}
}
