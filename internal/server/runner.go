package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dpays/jefferson/internal/cacheutil"
	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/httpapi"
	"github.com/dpays/jefferson/internal/irreversible"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/stats"
	"github.com/dpays/jefferson/internal/translate"
	"github.com/dpays/jefferson/internal/urn"
	"github.com/dpays/jefferson/internal/wspool"
)

// Runner orchestrates the proxy's startup, dependency wiring, and
// graceful shutdown.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run wires the full dependency graph and serves both HTTP listeners
// until a shutdown signal arrives.
//
// Startup order:
//  1. Configure runtime (GOMAXPROCS based on workers setting)
//  2. Build registry, cache group, canonicalizer, translator
//  3. Build dispatcher (with a forward-declared last-irreversible hook)
//  4. Build and start the irreversible-block tracker
//  5. Build and start the HTTP servers
//  6. Wait for shutdown signal (SIGINT/SIGTERM)
//  7. Gracefully stop everything with a bounded timeout
func (r *Runner) Run(cfg *config.Config, version, commit string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	r.configureRuntime(cfg)

	reg, err := registry.New(toRegistryRuleConfigs(cfg.Registry.Rules))
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	cache := r.buildCacheGroup(cfg)
	// The canonicalizer's cache is a small per-method-shape memo, an
	// unrelated concern from the response cache's memory_size, so it is
	// sized independently rather than reusing that config value.
	const methodShapeCacheSize = 4096
	canon := urn.New(cfg.Registry.NumericAPIs, methodShapeCacheSize)
	translator := translate.NewDefault()
	limits := jsonrpc.Limits{
		MaxCustomJSONOpLength: cfg.Limits.MaxCustomJSONOpLength,
		AccountAllow:          toSet(cfg.Limits.AccountAllow),
		AccountDeny:           toSet(cfg.Limits.AccountDeny),
	}

	// The dispatcher needs a LastIrreversible hook at construction time,
	// but the tracker needs a built dispatcher to poll through. The
	// closure resolves the cycle: tracker is assigned after New returns
	// and before tracker.Start runs its first poll, the earliest point
	// at which the hook is called.
	var tracker *irreversible.Tracker
	lastIrreversible := func() uint32 {
		if tracker == nil {
			return 0
		}
		return tracker.Last()
	}

	d := dispatch.New(dispatch.Config{
		Canonicalizer:    canon,
		Registry:         reg,
		Cache:            cache,
		Translator:       translator,
		Limits:           limits,
		LastIrreversible: lastIrreversible,
		WSDialer:         wspool.GorillaDialer{},
		PoolConfig:       poolConfigFor,
		HTTPTimeout:      15 * time.Second,
		RetryBackoffCap:  2 * time.Second,
		Logger:           r.logger,
	})

	refreshInterval := 3 * time.Second
	if parsed, perr := time.ParseDuration(cfg.Irreversible.RefreshInterval); perr == nil && parsed > 0 {
		refreshInterval = parsed
	}
	tracker = irreversible.New(irreversible.BuildPoll(d), refreshInterval, r.logger)
	tracker.Start(ctx)
	defer tracker.Stop()

	st := stats.New()
	srv := httpapi.New(cfg, r.logger, d, reg, cache, limits, st, tracker, version, commit)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServeProxy() }()
	if srv.AdminEnabled() {
		go func() { errCh <- srv.ListenAndServeAdmin() }()
	}

	r.logStartup(cfg, srv, reg)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			cancelRun()
			return err
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	return srv.Shutdown(stopCtx)
}

// configureRuntime sets GOMAXPROCS based on worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(cfg *config.Config) int {
	baseProcs := runtime.GOMAXPROCS(0)
	if baseProcs <= 0 {
		baseProcs = 1
	}
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	prev := runtime.GOMAXPROCS(desiredProcs)
	actual := runtime.GOMAXPROCS(0)
	if r.logger != nil {
		r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", baseProcs)
	}
	return actual
}

// buildCacheGroup wires the in-memory tier (always present) and, when
// configured, a Redis primary plus read-only replicas.
func (r *Runner) buildCacheGroup(cfg *config.Config) *cacheutil.Group {
	memory := cacheutil.NewMemory(cfg.Cache.MemorySize)

	var primary cacheutil.Backend
	if cfg.Cache.PrimaryAddress != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.PrimaryAddress,
			DB:       cfg.Cache.PrimaryDB,
			Password: cfg.Cache.PrimaryPassword,
		})
		primary = cacheutil.NewRedisBackend("redis-primary", client, false)
	}

	replicas := make([]cacheutil.Backend, 0, len(cfg.Cache.ReplicaAddresses))
	for i, addr := range cfg.Cache.ReplicaAddresses {
		client := redis.NewClient(&redis.Options{Addr: addr})
		replicas = append(replicas, cacheutil.NewRedisBackend(fmt.Sprintf("redis-replica-%d", i), client, true))
	}

	readTimeout := time.Duration(cfg.Cache.ReadTimeoutMS) * time.Millisecond
	return cacheutil.NewGroup(memory, primary, replicas, readTimeout, cfg.Cache.TestBeforeAdd, r.logger)
}

// poolConfigFor derives a per-upstream WebSocket pool configuration
// from the matched rule's timeout, used as the acquire timeout. There is no
// dedicated pool-sizing config section; these defaults mirror the
// teacher's calculateUpstreamPoolSize bounds.
func poolConfigFor(rule registry.Rule) wspool.Config {
	timeout := rule.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return wspool.Config{
		MinSize:             2,
		MaxSize:             32,
		MaxInFlight:         64,
		MaxLifetimeMessages: 0,
		ReadLimitBytes:      16 << 20,
		DialTimeout:         5 * time.Second,
		AcquireTimeout:      timeout,
	}
}

// logStartup logs server configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, srv *httpapi.Server, reg *registry.Registry) {
	if r.logger == nil {
		return
	}
	r.logger.Info("jefferson listening",
		"proxy_addr", srv.ProxyAddr(),
		"admin_enabled", srv.AdminEnabled(),
		"admin_addr", srv.AdminAddr(),
		"upstreams", reg.Len(),
		"max_batch_size", cfg.Server.MaxBatchSize,
	)
}

func toRegistryRuleConfigs(rules []config.RuleConfig) []registry.RuleConfig {
	out := make([]registry.RuleConfig, len(rules))
	for i, rc := range rules {
		out[i] = registry.RuleConfig{
			URNPrefix:          rc.URNPrefix,
			URL:                rc.URL,
			URLEnvVar:          rc.URLEnvVar,
			Transport:          rc.Transport,
			TTL:                rc.TTL,
			TimeoutSeconds:     rc.TimeoutSeconds,
			Retries:            rc.Retries,
			TranslateToAppbase: rc.TranslateToAppbase,
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
