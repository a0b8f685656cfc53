package cacheutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dpays/jefferson/internal/registry"
)

func TestResolveTTLNoCache(t *testing.T) {
	ttl := ResolveTTL(registry.TTL{Kind: registry.TTLNoCache}, "get_accounts", nil, 0)
	assert.Equal(t, ResolvedNoCache, ttl.Kind)
}

func TestResolveTTLSeconds(t *testing.T) {
	ttl := ResolveTTL(registry.TTL{Kind: registry.TTLSeconds, Seconds: 30}, "get_accounts", nil, 0)
	assert.Equal(t, ResolvedSeconds, ttl.Kind)
	assert.Equal(t, 30, ttl.Seconds)
}

func TestResolveTTLNoExpire(t *testing.T) {
	ttl := ResolveTTL(registry.TTL{Kind: registry.TTLNoExpire}, "get_accounts", nil, 0)
	assert.Equal(t, ResolvedNoExpire, ttl.Kind)
}

func TestResolveTTLIrreversibleBlockIsIrreversible(t *testing.T) {
	body := []byte(`{"result":{"block_id":"000003e8abcdef"}}`)
	ttl := ResolveTTL(registry.TTL{Kind: registry.TTLNoExpireIfIrreversible}, "get_block", body, 1001)
	assert.Equal(t, ResolvedNoExpire, ttl.Kind)
}

func TestResolveTTLIrreversibleBlockNotYetIrreversible(t *testing.T) {
	body := []byte(`{"result":{"block_id":"000003e8abcdef"}}`)
	ttl := ResolveTTL(registry.TTL{Kind: registry.TTLNoExpireIfIrreversible}, "get_block", body, 999)
	assert.Equal(t, ResolvedSeconds, ttl.Kind)
	assert.Equal(t, 3, ttl.Seconds)
}

func TestResolveTTLIrreversibleMissingBlockIDIsNoCache(t *testing.T) {
	ttl := ResolveTTL(registry.TTL{Kind: registry.TTLNoExpireIfIrreversible}, "get_block", []byte(`{"result":{}}`), 1001)
	assert.Equal(t, ResolvedNoCache, ttl.Kind)
}

func TestResolveTTLIrreversibleOnlyAppliesToBlockMethods(t *testing.T) {
	ttl := ResolveTTL(registry.TTL{Kind: registry.TTLNoExpireIfIrreversible}, "get_accounts", nil, 1001)
	assert.Equal(t, ResolvedSeconds, ttl.Kind)
	assert.Equal(t, 3, ttl.Seconds)
}

func TestBlockNumberFromBlockID(t *testing.T) {
	n, ok := BlockNumberFromBlockID("000003e8aabbccdd")
	assert.True(t, ok)
	assert.Equal(t, uint32(1000), n)

	_, ok = BlockNumberFromBlockID("short")
	assert.False(t, ok)

	_, ok = BlockNumberFromBlockID("zzzzzzzzaabbccdd")
	assert.False(t, ok)
}
