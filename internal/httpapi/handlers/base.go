// Package handlers implements jefferson's HTTP endpoint handlers: the
// JSON-RPC entry point and the read-only admin/health surface.
package handlers

import (
	"log/slog"
	"time"

	"github.com/dpays/jefferson/internal/cacheutil"
	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/irreversible"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/stats"
)

// Handler contains dependencies for API and JSON-RPC endpoint handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	cache      *cacheutil.Group
	limits     jsonrpc.Limits
	stats      *stats.Stats
	tracker    *irreversible.Tracker

	version string
	commit  string
}

// New creates a new Handler with the given configuration and
// collaborators, all of which must already be constructed by the
// runner (the registry, dispatcher, and tracker have no late-bound
// setters: unlike the teacher's handler, jefferson's registry is
// immutable for the process lifetime, so there is nothing to swap in
// after startup).
func New(cfg *config.Config, logger *slog.Logger, d *dispatch.Dispatcher, reg *registry.Registry, cache *cacheutil.Group, limits jsonrpc.Limits, st *stats.Stats, tracker *irreversible.Tracker, version, commit string) *Handler {
	return &Handler{
		cfg:        cfg,
		logger:     logger,
		startTime:  time.Now(),
		dispatcher: d,
		registry:   reg,
		cache:      cache,
		limits:     limits,
		stats:      st,
		tracker:    tracker,
		version:    version,
		commit:     commit,
	}
}
