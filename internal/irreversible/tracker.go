// Package irreversible maintains the last-irreversible block number the
// TTL policy (C6) needs as an input. The number is maintained by a
// periodic task outside the cache/dispatch pipeline: this package polls
// get_dynamic_global_properties through the same Dispatcher every other
// request uses, and stores the result atomically for ResolveTTL to
// read.
//
// The refresh loop adapts the teacher's blocklist refresh-ticker
// pattern (ticker plus stop channel, one goroutine) to a single
// upstream poll instead of a blocklist re-fetch.
package irreversible

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/jsonrpc"
)

// dynGlobalProperties decodes the fields of get_dynamic_global_properties
// this tracker needs.
type dynGlobalProperties struct {
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
}

// Tracker periodically polls get_dynamic_global_properties and exposes
// the last known last_irreversible_block_num as a plain accessor,
// satisfying dispatch.Config.LastIrreversible.
type Tracker struct {
	logger   *slog.Logger
	poll     func(ctx context.Context) (uint32, error)
	interval time.Duration

	lastIrreversible atomic.Uint32

	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// New builds a Tracker that polls via poll every interval. poll is
// expected to issue a get_dynamic_global_properties request and return
// its last_irreversible_block_num; see BuildPoll to construct one
// backed by a live dispatcher.
func New(poll func(ctx context.Context) (uint32, error), interval time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Tracker{
		logger:   logger,
		poll:     poll,
		interval: interval,
	}
}

// BuildPoll adapts a Dispatcher into the poll function New expects: it
// issues a single get_dynamic_global_properties request on each call
// and decodes last_irreversible_block_num from the reply, surfacing any
// JSON-RPC error as a plain error.
func BuildPoll(d *dispatch.Dispatcher) func(ctx context.Context) (uint32, error) {
	var counter atomic.Uint64
	return func(ctx context.Context) (uint32, error) {
		id := counter.Add(1)
		idRaw, _ := json.Marshal(id)
		req := jsonrpc.RawRequest{
			JSONRPC: "2.0",
			ID:      idRaw,
			Method:  "get_dynamic_global_properties",
		}
		results := d.Dispatch(ctx, []jsonrpc.RawRequest{req}, fmt.Sprintf("irreversible-tracker-%d", id))
		if len(results) != 1 {
			return 0, fmt.Errorf("expected 1 result from get_dynamic_global_properties poll, got %d", len(results))
		}
		env := results[0].Envelope
		if env.Error != nil {
			return 0, fmt.Errorf("get_dynamic_global_properties error: %s", env.Error.Message)
		}
		var props dynGlobalProperties
		if err := json.Unmarshal(env.Result, &props); err != nil {
			return 0, fmt.Errorf("decode dynamic global properties: %w", err)
		}
		return props.LastIrreversibleBlockNum, nil
	}
}

// Last returns the most recently observed last-irreversible block
// number. Zero until the first successful poll completes.
func (t *Tracker) Last() uint32 {
	return t.lastIrreversible.Load()
}

// Start performs an initial synchronous poll (best effort) and then
// starts the background refresh loop. Safe to call once.
func (t *Tracker) Start(ctx context.Context) {
	t.refreshOnce(ctx)

	t.ticker = time.NewTicker(t.interval)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.refreshLoop(ctx)
}

// refreshLoop polls on every tick until Stop is called.
func (t *Tracker) refreshLoop(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-t.ticker.C:
			t.refreshOnce(ctx)
		case <-t.stop:
			return
		}
	}
}

func (t *Tracker) refreshOnce(ctx context.Context) {
	n, err := t.poll(ctx)
	if err != nil {
		t.logger.Warn("failed to refresh last irreversible block", "error", err)
		return
	}
	t.lastIrreversible.Store(n)
}

// Stop halts the background refresh loop and waits for it to exit.
func (t *Tracker) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
	if t.stop != nil {
		close(t.stop)
		<-t.done
	}
}
