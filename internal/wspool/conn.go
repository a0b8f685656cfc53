package wspool

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// ErrConnectionReset is returned to any caller still parked on a
// waiter when its connection is poisoned by a read or write failure,
// or abandoned on send/await timeout.
var ErrConnectionReset = errors.New("wspool: connection reset")

type waiterMsg struct {
	data []byte
	err  error
}

// Conn wraps one live upstream WebSocket connection, multiplexing
// concurrent requests onto it by JSON-RPC id. A dedicated reader
// goroutine demultiplexes replies (single objects or batch arrays) back
// to the waiter that sent the matching id.
type Conn struct {
	ws     WSConn
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan waiterMsg

	nextID atomic.Int64
	uses   int // bumped by Pool.Release, which only the connection's current holder calls; not mutex-guarded

	closed          atomic.Bool
	onUnrecoverable func(*Conn)
}

func newConn(ws WSConn, logger *slog.Logger) *Conn {
	return &Conn{
		ws:      ws,
		logger:  logger,
		pending: make(map[int64]chan waiterMsg),
	}
}

func (c *Conn) isClosed() bool { return c.closed.Load() }

// NextUpstreamID returns this connection's next wire id, drawn from a
// per-connection monotonic counter.
func (c *Conn) NextUpstreamID() int64 { return c.nextID.Add(1) }

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Conn) dispatch(data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return
	}
	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			c.logger.Warn("wspool: unparseable batch frame from upstream", "error", err)
			return
		}
		for _, item := range arr {
			c.dispatchOne(item)
		}
		return
	}
	c.dispatchOne(trimmed)
}

func (c *Conn) dispatchOne(raw json.RawMessage) {
	var idOnly struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &idOnly); err != nil {
		c.logger.Warn("wspool: reply with unparseable id", "error", err)
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[idOnly.ID]
	if ok {
		delete(c.pending, idOnly.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("wspool: reply for unknown upstream id, discarding", "id", idOnly.ID)
		return
	}
	ch <- waiterMsg{data: raw}
}

// shutdown marks the connection closed, fails every parked waiter, and
// closes the transport. Parked waiters receive ErrConnectionReset,
// wrapping cause when there is one; cause is nil for a planned
// (lifetime-cap or pool-close) shutdown. It is safe to call more than
// once.
func (c *Conn) shutdown(cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan waiterMsg)
	c.pendingMu.Unlock()

	err := ErrConnectionReset
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionReset, cause)
	}
	for _, ch := range pending {
		ch <- waiterMsg{err: err}
	}

	_ = c.ws.Close()

	if c.onUnrecoverable != nil {
		c.onUnrecoverable(c)
	}
}

// SendAndAwait writes one JSON-RPC request frame and parks on upstreamID
// until its reply arrives, ctx is done, or the connection is poisoned.
// A ctx cancellation or write error poisons the connection: it is never
// returned to the pool in a usable state.
func (c *Conn) SendAndAwait(ctx ctxDoner, frame []byte, upstreamID int64) ([]byte, error) {
	ch := make(chan waiterMsg, 1)
	c.pendingMu.Lock()
	c.pending[upstreamID] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(upstreamID)
		c.shutdown(err)
		return nil, err
	}

	select {
	case msg := <-ch:
		if msg.err != nil {
			return nil, msg.err
		}
		return msg.data, nil
	case <-ctx.Done():
		c.removePending(upstreamID)
		c.shutdown(ctx.Err())
		return nil, ctx.Err()
	}
}

// SendBatchAndAwait writes frames as a single JSON array frame (one
// array index per id in ids) and gathers all replies before returning.
// Like SendAndAwait, any failure poisons the whole connection.
func (c *Conn) SendBatchAndAwait(ctx ctxDoner, frames []json.RawMessage, ids []int64) ([][]byte, error) {
	channels := make([]chan waiterMsg, len(ids))
	c.pendingMu.Lock()
	for i, id := range ids {
		ch := make(chan waiterMsg, 1)
		channels[i] = ch
		c.pending[id] = ch
	}
	c.pendingMu.Unlock()

	arr, err := json.Marshal(frames)
	if err != nil {
		c.removePendingBatch(ids)
		return nil, err
	}

	c.writeMu.Lock()
	werr := c.ws.WriteMessage(websocket.TextMessage, arr)
	c.writeMu.Unlock()
	if werr != nil {
		c.removePendingBatch(ids)
		c.shutdown(werr)
		return nil, werr
	}

	results := make([][]byte, len(ids))
	for i, ch := range channels {
		select {
		case msg := <-ch:
			if msg.err != nil {
				return nil, msg.err
			}
			results[i] = msg.data
		case <-ctx.Done():
			c.removePendingBatch(ids[i:])
			c.shutdown(ctx.Err())
			return nil, ctx.Err()
		}
	}
	return results, nil
}

func (c *Conn) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Conn) removePendingBatch(ids []int64) {
	c.pendingMu.Lock()
	for _, id := range ids {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// ctxDoner is the sliver of context.Context SendAndAwait/SendBatchAndAwait
// need, so callers can pass a context.Context directly.
type ctxDoner interface {
	Done() <-chan struct{}
	Err() error
}
