package cacheutil

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisBackend adapts a go-redis client to the Backend interface. A
// primary backend is writable; read-replica backends are constructed
// with readOnly=true so Set/Clear are no-ops (replicas sync from the
// primary outside this process).
type RedisBackend struct {
	name     string
	client   *redis.Client
	readOnly bool
}

// NewRedisBackend wraps client. name distinguishes primary/replica-N in
// logs and stats.
func NewRedisBackend(name string, client *redis.Client, readOnly bool) *RedisBackend {
	return &RedisBackend{name: name, client: client, readOnly: readOnly}
}

func (r *RedisBackend) Name() string { return r.name }

func (r *RedisBackend) Get(ctx context.Context, key string) GetResult {
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return GetResult{}
	}
	val, err := getCmd.Result()
	if err != nil {
		return GetResult{}
	}
	return GetResult{Value: json.RawMessage(val), Found: true, TTL: resolvedTTLFromPTTL(ttlCmd.Val())}
}

func (r *RedisBackend) GetBatch(ctx context.Context, keys []string) map[string]GetResult {
	out := make(map[string]GetResult, len(keys))
	if len(keys) == 0 {
		return out
	}

	pipe := r.client.Pipeline()
	getCmds := make(map[string]*redis.StringCmd, len(keys))
	ttlCmds := make(map[string]*redis.DurationCmd, len(keys))
	for _, k := range keys {
		getCmds[k] = pipe.Get(ctx, k)
		ttlCmds[k] = pipe.PTTL(ctx, k)
	}
	_, _ = pipe.Exec(ctx)

	for _, k := range keys {
		val, err := getCmds[k].Result()
		if err != nil {
			continue
		}
		out[k] = GetResult{Value: json.RawMessage(val), Found: true, TTL: resolvedTTLFromPTTL(ttlCmds[k].Val())}
	}
	return out
}

func (r *RedisBackend) Set(ctx context.Context, key string, value json.RawMessage, ttl ResolvedTTL) {
	if r.readOnly {
		return
	}
	switch ttl.Kind {
	case ResolvedNoCache:
		return
	case ResolvedNoExpire:
		r.client.Set(ctx, key, []byte(value), 0)
	default:
		r.client.Set(ctx, key, []byte(value), time.Duration(ttl.Seconds)*time.Second)
	}
}

func (r *RedisBackend) Clear(ctx context.Context) {
	if r.readOnly {
		return
	}
	r.client.FlushDB(ctx)
}

func resolvedTTLFromPTTL(d time.Duration) ResolvedTTL {
	if d < 0 {
		return ResolvedTTL{Kind: ResolvedNoExpire}
	}
	secs := int(d / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return ResolvedTTL{Kind: ResolvedSeconds, Seconds: secs}
}
