package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/wspool"
)

// wsSender owns one wspool.Pool per upstream WebSocket URL, created
// lazily on first use.
type wsSender struct {
	mu      sync.Mutex
	pools   map[string]*wspool.Pool
	dialer  wspool.Dialer
	logger  *slog.Logger
	poolCfg func(registry.Rule) wspool.Config
}

func newWSSender(dialer wspool.Dialer, poolCfg func(registry.Rule) wspool.Config, logger *slog.Logger) *wsSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsSender{
		pools:   make(map[string]*wspool.Pool),
		dialer:  dialer,
		logger:  logger,
		poolCfg: poolCfg,
	}
}

func (s *wsSender) poolFor(ctx context.Context, upstream registry.ResolvedUpstream) (*wspool.Pool, error) {
	s.mu.Lock()
	if p, ok := s.pools[upstream.URL]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	p, err := wspool.New(ctx, upstream.URL, s.poolCfg(upstream.Rule), s.dialer, s.logger)
	if err != nil {
		return nil, fmt.Errorf("open pool for %s: %w", upstream.URL, err)
	}

	s.mu.Lock()
	if existing, ok := s.pools[upstream.URL]; ok {
		s.mu.Unlock()
		p.Close()
		return existing, nil
	}
	s.pools[upstream.URL] = p
	s.mu.Unlock()
	return p, nil
}

// Acquire checks out a connection to upstream for the duration of one
// send/await cycle or one batch dispatch.
func (s *wsSender) Acquire(ctx context.Context, upstream registry.ResolvedUpstream) (*wspool.Conn, error) {
	p, err := s.poolFor(ctx, upstream)
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// Release returns a connection previously acquired for upstream.
func (s *wsSender) Release(upstream registry.ResolvedUpstream, c *wspool.Conn) {
	s.mu.Lock()
	p, ok := s.pools[upstream.URL]
	s.mu.Unlock()
	if ok {
		p.Release(c)
	}
}

// Stats snapshots every pool opened so far, keyed by upstream URL. A
// pool only appears once at least one request has resolved to it,
// since pools are opened lazily.
func (s *wsSender) Stats() []wspool.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wspool.Stats, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p.Stats())
	}
	return out
}

// MaxInFlight reports the configured per-connection batch fan-out width
// for upstream, opening its pool if necessary.
func (s *wsSender) MaxInFlight(ctx context.Context, upstream registry.ResolvedUpstream) (int, error) {
	p, err := s.poolFor(ctx, upstream)
	if err != nil {
		return 0, err
	}
	if n := p.MaxInFlight(); n > 0 {
		return n, nil
	}
	return 1, nil
}

// httpSender posts JSON-RPC requests to an upstream that speaks plain
// HTTP instead of WebSocket. There is no connection pooling concern
// here beyond what http.Transport already provides; id multiplexing is
// unnecessary since every call is a self-contained round trip, but ids
// are still used to re-associate a batch HTTP reply's array elements
// with the request that produced them.
type httpSender struct {
	client *http.Client
}

func newHTTPSender(timeout time.Duration) *httpSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpSender{client: &http.Client{Timeout: timeout}}
}

func (s *httpSender) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
	}
	return out, nil
}

func (s *httpSender) Send(ctx context.Context, url string, frame []byte) ([]byte, error) {
	return s.post(ctx, url, frame)
}

func (s *httpSender) SendBatch(ctx context.Context, url string, frames []json.RawMessage, ids []int64) ([][]byte, error) {
	body, err := json.Marshal(frames)
	if err != nil {
		return nil, err
	}
	raw, err := s.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var replies []jsonrpc.RawResponse
	if err := json.Unmarshal(raw, &replies); err != nil {
		return nil, fmt.Errorf("upstream batch reply is not a JSON array: %w", err)
	}

	byID := make(map[int64]json.RawMessage, len(replies))
	for _, r := range replies {
		var id int64
		if err := json.Unmarshal(r.ID, &id); err != nil {
			continue
		}
		reencoded, err := json.Marshal(r)
		if err != nil {
			continue
		}
		byID[id] = reencoded
	}

	out := make([][]byte, len(ids))
	for i, id := range ids {
		reply, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("upstream batch reply missing id %d", id)
		}
		out[i] = reply
	}
	return out, nil
}
