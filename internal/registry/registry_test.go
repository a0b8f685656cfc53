package registry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLongestPrefixWins(t *testing.T) {
	r, err := New([]RuleConfig{
		{URNPrefix: "dpayd", URL: "wss://general.example.com", TTL: "3", Transport: "websocket"},
		{URNPrefix: "dpayd.database_api", URL: "wss://db.example.com", TTL: "no_expire_if_irreversible", Transport: "websocket"},
	})
	require.NoError(t, err)

	resolved, rerr := r.Resolve("dpayd.database_api.get_block.params=[1000]")
	require.Nil(t, rerr)
	assert.Equal(t, "wss://db.example.com", resolved.URL)
	assert.Equal(t, TTLNoExpireIfIrreversible, resolved.Rule.TTL.Kind)
}

func TestResolveFallsBackToShorterPrefix(t *testing.T) {
	r, err := New([]RuleConfig{
		{URNPrefix: "dpayd", URL: "wss://general.example.com", TTL: "3", Transport: "websocket"},
		{URNPrefix: "dpayd.database_api", URL: "wss://db.example.com", Transport: "websocket"},
	})
	require.NoError(t, err)

	resolved, rerr := r.Resolve("dpayd.follow_api.get_followers")
	require.Nil(t, rerr)
	assert.Equal(t, "wss://general.example.com", resolved.URL)
}

func TestResolveNoMatchIsMethodNotFound(t *testing.T) {
	r, err := New([]RuleConfig{{URNPrefix: "dpayd", URL: "wss://x", Transport: "websocket"}})
	require.NoError(t, err)

	_, rerr := r.Resolve("appbase.condenser_api.get_block")
	require.NotNil(t, rerr)
	assert.Equal(t, -32601, rerr.Kind.Code())
}

func TestResolveURLEnvVarIndirectionAtLookupTime(t *testing.T) {
	r, err := New([]RuleConfig{
		{URNPrefix: "dpayd", URL: "wss://default", URLEnvVar: "JEFFERSON_TEST_UPSTREAM_URL", Transport: "websocket"},
	})
	require.NoError(t, err)

	resolved, rerr := r.Resolve("dpayd.database_api.get_block")
	require.Nil(t, rerr)
	assert.Equal(t, "wss://default", resolved.URL, "env var unset should fall back to literal URL")

	require.NoError(t, os.Setenv("JEFFERSON_TEST_UPSTREAM_URL", "wss://overridden"))
	defer os.Unsetenv("JEFFERSON_TEST_UPSTREAM_URL")

	resolved, rerr = r.Resolve("dpayd.database_api.get_block")
	require.Nil(t, rerr)
	assert.Equal(t, "wss://overridden", resolved.URL, "env var set after load should still take effect")
}

func TestParseTTLSentinels(t *testing.T) {
	cases := map[string]TTLKind{
		"no_expire":                 TTLNoExpire,
		"no_cache":                  TTLNoCache,
		"no_expire_if_irreversible": TTLNoExpireIfIrreversible,
		"3":                         TTLSeconds,
	}
	for raw, want := range cases {
		ttl, err := ParseTTL(raw)
		require.NoError(t, err)
		assert.Equal(t, want, ttl.Kind)
	}

	_, err := ParseTTL("not-a-ttl")
	assert.Error(t, err)
}

func TestTTLRankTotalOrdering(t *testing.T) {
	noCache := TTL{Kind: TTLNoCache}
	seconds := TTL{Kind: TTLSeconds, Seconds: 3}
	irreversible := TTL{Kind: TTLNoExpireIfIrreversible}
	noExpire := TTL{Kind: TTLNoExpire}

	assert.Less(t, noCache.Rank(), seconds.Rank())
	assert.Less(t, seconds.Rank(), irreversible.Rank())
	assert.Less(t, irreversible.Rank(), noExpire.Rank())
}
