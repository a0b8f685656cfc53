package handlers

import (
	"time"

	"github.com/dpays/jefferson/internal/cacheutil"
	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/stats"
	"github.com/dpays/jefferson/internal/translate"
	"github.com/dpays/jefferson/internal/urn"
	"github.com/dpays/jefferson/internal/wspool"
)

// newTestHandler builds a Handler wired to a dispatcher whose registry
// holds the given rules. With no rules (nil), every request resolves to a
// "no upstream rule matches" error, which is enough to exercise the
// HTTP-layer request/response plumbing without a network dependency.
func newTestHandler(rules []registry.RuleConfig, maxBatchSize int) *Handler {
	reg, err := registry.New(rules)
	if err != nil {
		panic(err)
	}

	cache := cacheutil.NewGroup(cacheutil.NewMemory(64), nil, nil, time.Second, false, nil)
	canon := urn.New(nil, 64)

	d := dispatch.New(dispatch.Config{
		Canonicalizer: canon,
		Registry:      reg,
		Cache:         cache,
		Translator:    translate.NewDefault(),
		Limits:        jsonrpc.Limits{},
		WSDialer:      wspool.GorillaDialer{},
		PoolConfig:    func(registry.Rule) wspool.Config { return wspool.Config{} },
		HTTPTimeout:   time.Second,
	})

	cfg := &config.Config{}
	cfg.Server.MaxBatchSize = maxBatchSize

	return New(cfg, nil, d, reg, cache, jsonrpc.Limits{}, stats.New(), nil, "test-version", "test-commit")
}
