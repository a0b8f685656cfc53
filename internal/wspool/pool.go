// Package wspool implements the per-upstream WebSocket connection pool
// (C7): bounded pool size, per-connection message multiplexing by id,
// FIFO-fair acquisition, and health-driven connection replacement. It
// adapts the teacher's channel-based UDP pool (forwarding_resolver.go)
// and per-upstream health tracking to a persistent, multiplexed
// transport, and borrows its id-correlation shape from the gorilla/
// websocket gateway client pattern (pendingCalls map keyed by id, one
// reader goroutine per connection).
package wspool

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config configures one pool.
type Config struct {
	MinSize              int
	MaxSize              int
	MaxInFlight          int // per-connection batch fan-out width
	MaxLifetimeMessages  int // 0 = unlimited
	ReadLimitBytes       int64
	DialTimeout          time.Duration
	AcquireTimeout       time.Duration
}

// Pool is one connection pool bound to a single upstream WebSocket URL.
type Pool struct {
	url    string
	cfg    Config
	dialer Dialer
	logger *slog.Logger

	mu      sync.Mutex
	idle    []*Conn
	total   int
	waiters *list.List // FIFO list of chan *Conn
	closed  bool
}

// New dials cfg.MinSize connections up front (warm-up) and returns the
// pool, or an error if warm-up fails.
func New(ctx context.Context, url string, cfg Config, dialer Dialer, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dialer == nil {
		dialer = GorillaDialer{}
	}
	p := &Pool{url: url, cfg: cfg, dialer: dialer, logger: logger, waiters: list.New()}

	for i := 0; i < cfg.MinSize; i++ {
		c, err := p.dialNew(ctx)
		if err != nil {
			return nil, fmt.Errorf("warm-up connection %d/%d to %s: %w", i+1, cfg.MinSize, url, err)
		}
		p.idle = append(p.idle, c)
	}
	return p, nil
}

func (p *Pool) dialNew(ctx context.Context) (*Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	ws, err := p.dialer.Dial(dctx, p.url)
	if err != nil {
		return nil, err
	}
	if p.cfg.ReadLimitBytes > 0 {
		ws.SetReadLimit(p.cfg.ReadLimitBytes)
	}

	c := newConn(ws, p.logger)
	c.onUnrecoverable = p.connGone

	p.mu.Lock()
	p.total++
	p.mu.Unlock()

	go c.readLoop()
	return c, nil
}

// Acquire returns an idle connection, opens a new one if the pool has
// room, or blocks FIFO-fair until one is released or ctx is done.
// Dispatchers hold the returned connection only for the duration of one
// send/await cycle or one batch dispatch.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	if p.total < p.cfg.MaxSize {
		p.mu.Unlock()
		return p.dialNew(ctx)
	}

	ch := make(chan *Conn, 1)
	elem := p.waiters.PushBack(ch)
	p.mu.Unlock()

	actx := ctx
	var cancel context.CancelFunc
	if p.cfg.AcquireTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	select {
	case c := <-ch:
		return c, nil
	case <-actx.Done():
		p.mu.Lock()
		p.waiters.Remove(elem)
		p.mu.Unlock()
		return nil, actx.Err()
	}
}

// Release returns c to the pool. A connection poisoned mid-use, or one
// that has reached its per-connection lifetime cap, is closed instead
// and a replacement is opened in the background to maintain min-size.
// Release never blocks.
func (p *Pool) Release(c *Conn) {
	if c.isClosed() {
		return
	}

	c.uses++
	if p.cfg.MaxLifetimeMessages > 0 && c.uses >= p.cfg.MaxLifetimeMessages {
		c.shutdown(nil)
		return
	}

	p.mu.Lock()
	if elem := p.waiters.Front(); elem != nil {
		p.waiters.Remove(elem)
		ch := elem.Value.(chan *Conn)
		p.mu.Unlock()
		ch <- c
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// connGone is invoked by a Conn once it has shut down (error or
// lifetime cap), decrementing the live total and replenishing toward
// min-size in the background if needed.
func (p *Pool) connGone(_ *Conn) {
	p.mu.Lock()
	p.total--
	needReplenish := p.total < p.cfg.MinSize && !p.closed
	p.mu.Unlock()

	if needReplenish {
		go p.replenish()
	}
}

func (p *Pool) replenish() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DialTimeout)
	defer cancel()

	c, err := p.dialNew(ctx)
	if err != nil {
		p.logger.Error("failed to replenish pool connection", "url", p.url, "error", err)
		return
	}

	p.mu.Lock()
	if elem := p.waiters.Front(); elem != nil {
		p.waiters.Remove(elem)
		ch := elem.Value.(chan *Conn)
		p.mu.Unlock()
		ch <- c
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// MaxInFlight exposes the configured per-connection batch fan-out
// width, so the dispatcher can chunk an oversized batch across several
// acquire/release cycles.
func (p *Pool) MaxInFlight() int { return p.cfg.MaxInFlight }

// Stats is a point-in-time snapshot of one pool's connection counts,
// surfaced on the admin health endpoint.
type Stats struct {
	URL     string
	Total   int
	Idle    int
	InUse   int
	MaxSize int
}

// Stats reports the pool's current connection counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{URL: p.url, Total: p.total, Idle: len(p.idle), InUse: p.total - len(p.idle), MaxSize: p.cfg.MaxSize}
}

// Close shuts the pool down: idle connections are closed and no new
// ones are dialed. In-flight uses complete on their own.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.shutdown(nil)
	}
}
