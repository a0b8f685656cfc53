// Package dispatch implements the single entry point (C8) that turns a
// validated batch of JSON-RPC requests into ordered replies: canonicalize
// (C1), resolve upstream (C2), fan out to cache (C5), translate and send
// misses to the right upstream (C9, C7), validate the reply (C4),
// resolve its TTL (C6), and write back to cache — grouping same-upstream
// misses so they share a connection and, for WebSocket upstreams, a
// single batch frame.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/dpays/jefferson/internal/cacheutil"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/jsonrpcerr"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/translate"
	"github.com/dpays/jefferson/internal/urn"
	"github.com/dpays/jefferson/internal/wspool"
)

// Result is one request's outcome: its rendered reply envelope, the URN
// it resolved to (for cache-hit header reporting), whether it is a
// notification (dispatched like any other request; the HTTP layer leaves
// it out of the reply body), and whether it was served from cache.
type Result struct {
	Envelope       jsonrpc.Envelope
	URN            string
	Namespace      string
	API            string
	Method         string
	ParamsCanonical string
	IsNotification bool
	FromCache      bool
}

// Config wires a Dispatcher's collaborators.
type Config struct {
	Canonicalizer    *urn.Canonicalizer
	Registry         *registry.Registry
	Cache            *cacheutil.Group
	Translator       *translate.Translator
	Limits           jsonrpc.Limits
	LastIrreversible func() uint32
	WSDialer         wspool.Dialer
	PoolConfig       func(registry.Rule) wspool.Config
	HTTPTimeout      time.Duration
	RetryBackoffCap  time.Duration
	Logger           *slog.Logger
}

// Dispatcher is the C8 orchestrator.
type Dispatcher struct {
	canon            *urn.Canonicalizer
	registry         *registry.Registry
	cache            *cacheutil.Group
	translator       *translate.Translator
	limits           jsonrpc.Limits
	lastIrreversible func() uint32
	ws               *wsSender
	http             *httpSender
	backoffCap       time.Duration
	logger           *slog.Logger
}

// New builds a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoffCap := cfg.RetryBackoffCap
	if backoffCap <= 0 {
		backoffCap = time.Second
	}
	return &Dispatcher{
		canon:            cfg.Canonicalizer,
		registry:         cfg.Registry,
		cache:            cfg.Cache,
		translator:       cfg.Translator,
		limits:           cfg.Limits,
		lastIrreversible: cfg.LastIrreversible,
		ws:               newWSSender(cfg.WSDialer, cfg.PoolConfig, logger),
		http:             newHTTPSender(cfg.HTTPTimeout),
		backoffCap:       backoffCap,
		logger:           logger,
	}
}

// item carries one request through the pipeline alongside its derived
// state.
type item struct {
	req       jsonrpc.RawRequest
	urn       urn.URN
	cacheKey  string
	upstream  registry.ResolvedUpstream
	result    json.RawMessage
	errv      *jsonrpcerr.Error
	fromCache bool
}

// UpstreamPoolStats reports the current connection pool state for
// every WebSocket upstream a request has resolved to so far, for the
// admin health endpoint.
func (d *Dispatcher) UpstreamPoolStats() []wspool.Stats {
	return d.ws.Stats()
}

// Dispatch runs requests through the full pipeline and returns one
// Result per request, in input order. requestID is the HTTP-layer
// request id stamped onto any error envelope for log correlation.
func (d *Dispatcher) Dispatch(ctx context.Context, requests []jsonrpc.RawRequest, requestID string) []Result {
	items := make([]*item, len(requests))
	for i, req := range requests {
		it := &item{req: req}
		items[i] = it

		u, cerr := d.canon.Canonicalize(req.Method, req.Params)
		if cerr != nil {
			it.errv = cerr
			continue
		}
		it.urn = u
		it.cacheKey = u.String()

		if lerr := d.limits.Check(u.Method, u.Params.Canonical()); lerr != nil {
			it.errv = lerr
			continue
		}

		up, rerr := d.registry.Resolve(it.cacheKey)
		if rerr != nil {
			it.errv = rerr
			continue
		}
		it.upstream = up

		if _, ferr := d.buildFrame(up.Rule, u, 0); ferr != nil {
			it.errv = ferr
			continue
		}
	}

	d.lookupCache(ctx, items)
	d.dispatchMisses(ctx, items)

	return d.assemble(items, requestID)
}

func (d *Dispatcher) buildFrame(rule registry.Rule, u urn.URN, upstreamID int64) ([]byte, *jsonrpcerr.Error) {
	if rule.TranslateToAppbase {
		return d.translator.Translate(u, upstreamID)
	}
	raw, err := buildWireRequest(u, upstreamID)
	if err != nil {
		return nil, jsonrpcerr.New(jsonrpcerr.KindInternalError, "failed to encode upstream request")
	}
	return raw, nil
}

func (d *Dispatcher) lookupCache(ctx context.Context, items []*item) {
	byKey := make(map[string][]*item)
	for _, it := range items {
		if it.errv != nil {
			continue
		}
		byKey[it.cacheKey] = append(byKey[it.cacheKey], it)
	}
	if len(byKey) == 0 {
		return
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}

	hits := d.cache.GetBatch(ctx, keys)
	for key, r := range hits {
		if !r.Found {
			continue
		}
		for _, it := range byKey[key] {
			it.result = r.Value
			it.fromCache = true
		}
	}
}

func (d *Dispatcher) dispatchMisses(ctx context.Context, items []*item) {
	groups := make(map[string][]*item)
	var order []string
	for _, it := range items {
		if it.errv != nil || it.result != nil {
			continue
		}
		if _, ok := groups[it.upstream.URL]; !ok {
			order = append(order, it.upstream.URL)
		}
		groups[it.upstream.URL] = append(groups[it.upstream.URL], it)
	}

	var eg errgroup.Group
	for _, url := range order {
		group := groups[url]
		eg.Go(func() error {
			d.dispatchGroup(ctx, group)
			return nil
		})
	}
	_ = eg.Wait()
}

// dispatchGroup chunks a same-upstream group of misses to the
// connection's configured batch fan-out width (WebSocket) or sends the
// whole group as one HTTP batch, then dispatches each chunk.
func (d *Dispatcher) dispatchGroup(ctx context.Context, group []*item) {
	if len(group) == 0 {
		return
	}
	rule := group[0].upstream.Rule

	chunkSize := len(group)
	if rule.Transport == registry.TransportWebSocket {
		if n, err := d.ws.MaxInFlight(ctx, group[0].upstream); err == nil && n > 0 {
			chunkSize = n
		} else {
			chunkSize = 1
		}
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}

	for i := 0; i < len(group); i += chunkSize {
		end := i + chunkSize
		if end > len(group) {
			end = len(group)
		}
		d.dispatchChunk(ctx, group[i:end])
	}
}

// dispatchChunk sends one group of same-upstream requests, retrying the
// whole chunk against a freshly acquired connection up to the upstream
// rule's retry count on a transport-level failure, with a capped
// exponential backoff between attempts. A response that arrives but
// fails validation is not retried: it is an application-level failure
// unique to that one request, not a symptom of a bad connection.
func (d *Dispatcher) dispatchChunk(ctx context.Context, chunk []*item) {
	rule := chunk[0].upstream.Rule
	retries := rule.Retries
	if retries < 0 {
		retries = 0
	}
	attempts := retries + 1

	backoff := 50 * time.Millisecond
	var lastErr error
retryLoop:
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retryLoop
			}
			if backoff *= 2; backoff > d.backoffCap {
				backoff = d.backoffCap
			}
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		err := d.attemptChunk(ctx, chunk)
		if err == nil {
			return
		}
		lastErr = err
	}

	for _, it := range chunk {
		if it.errv == nil && it.result == nil {
			it.errv = jsonrpcerr.Newf(jsonrpcerr.KindServerError, "upstream dispatch failed after %d attempt(s): %v", attempts, lastErr)
		}
	}
}

func (d *Dispatcher) attemptChunk(ctx context.Context, chunk []*item) error {
	upstream := chunk[0].upstream
	rule := upstream.Rule

	dctx := ctx
	if rule.Timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, rule.Timeout)
		defer cancel()
	}

	if rule.Transport == registry.TransportHTTP {
		return d.attemptHTTPChunk(dctx, upstream, chunk)
	}
	return d.attemptWSChunk(dctx, upstream, chunk)
}

func (d *Dispatcher) attemptWSChunk(ctx context.Context, upstream registry.ResolvedUpstream, chunk []*item) error {
	conn, err := d.ws.Acquire(ctx, upstream)
	if err != nil {
		return fmt.Errorf("acquire connection to %s: %w", upstream.URL, err)
	}
	defer d.ws.Release(upstream, conn)

	ids := make([]int64, len(chunk))
	frames := make([]json.RawMessage, len(chunk))
	for i, it := range chunk {
		id := conn.NextUpstreamID()
		ids[i] = id
		frame, ferr := d.buildFrame(it.upstream.Rule, it.urn, id)
		if ferr != nil {
			return fmt.Errorf("re-encoding request for %s: %s", it.urn.String(), ferr.Message)
		}
		frames[i] = json.RawMessage(frame)
	}

	var replies [][]byte
	if len(chunk) == 1 {
		reply, serr := conn.SendAndAwait(ctx, frames[0], ids[0])
		if serr != nil {
			return serr
		}
		replies = [][]byte{reply}
	} else {
		replies, err = conn.SendBatchAndAwait(ctx, frames, ids)
		if err != nil {
			return err
		}
	}

	for i, it := range chunk {
		d.applyReply(it, ids[i], replies[i])
	}
	return nil
}

func (d *Dispatcher) attemptHTTPChunk(ctx context.Context, upstream registry.ResolvedUpstream, chunk []*item) error {
	ids := make([]int64, len(chunk))
	frames := make([]json.RawMessage, len(chunk))
	for i, it := range chunk {
		id := int64(i + 1)
		ids[i] = id
		frame, ferr := d.buildFrame(it.upstream.Rule, it.urn, id)
		if ferr != nil {
			return fmt.Errorf("re-encoding request for %s: %s", it.urn.String(), ferr.Message)
		}
		frames[i] = json.RawMessage(frame)
	}

	var replies [][]byte
	if len(chunk) == 1 {
		reply, err := d.http.Send(ctx, upstream.URL, frames[0])
		if err != nil {
			return err
		}
		replies = [][]byte{reply}
	} else {
		var err error
		replies, err = d.http.SendBatch(ctx, upstream.URL, frames, ids)
		if err != nil {
			return err
		}
	}

	for i, it := range chunk {
		d.applyReply(it, ids[i], replies[i])
	}
	return nil
}

// applyReply validates an upstream reply against the request that
// produced it, runs the get_block structural check when applicable,
// and on success resolves the TTL and writes the result back to cache.
func (d *Dispatcher) applyReply(it *item, upstreamID int64, raw []byte) {
	resp, verr := jsonrpc.ValidateResponse(raw, upstreamID)
	if verr != nil {
		it.errv = verr
		return
	}
	if len(resp.Error) > 0 {
		it.errv = jsonrpcerr.Newf(jsonrpcerr.KindServerError, "upstream returned an error: %s", string(resp.Error))
		return
	}

	if it.urn.Method == "get_block" || it.urn.Method == "get_block_header" {
		if blockNum, ok := firstParamAsBlockNum(it.urn.Params); ok {
			if berr := jsonrpc.ValidateGetBlockResponse(resp.Result, blockNum); berr != nil {
				it.errv = berr
				return
			}
		}
	}

	it.result = resp.Result

	var last uint32
	if d.lastIrreversible != nil {
		last = d.lastIrreversible()
	}
	ttl := cacheutil.ResolveTTL(it.upstream.Rule.TTL, it.urn.Method, raw, last)
	d.cache.Set(context.Background(), it.cacheKey, it.result, ttl)
}

func firstParamAsBlockNum(p urn.Params) (uint32, bool) {
	if p.IsAbsent() {
		return 0, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(p.Canonical()), &arr); err != nil || len(arr) == 0 {
		return 0, false
	}
	var n uint32
	if err := json.Unmarshal(arr[0], &n); err != nil {
		return 0, false
	}
	return n, true
}

func (d *Dispatcher) assemble(items []*item, requestID string) []Result {
	out := make([]Result, len(items))
	for i, it := range items {
		res := Result{
			URN:             it.cacheKey,
			Namespace:       it.urn.Namespace,
			API:             it.urn.API,
			Method:          it.urn.Method,
			ParamsCanonical: it.urn.Params.Canonical(),
			IsNotification:  it.req.IsNotification(),
			FromCache:       it.fromCache,
		}
		env := jsonrpc.Envelope{JSONRPC: "2.0", ID: it.req.ID}
		if it.errv != nil {
			envelope := it.errv.Envelope(requestID)
			env.Error = &envelope
		} else {
			env.Result = it.result
		}
		res.Envelope = env
		out[i] = res
	}
	return out
}
