package irreversible

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpays/jefferson/internal/cacheutil"
	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/urn"
	"github.com/dpays/jefferson/internal/wspool"
)

type fakeWSConn struct {
	mu        sync.Mutex
	responder func(frame []byte) [][]byte
	outbox    chan []byte
	closed    bool
}

func newFakeWSConn(responder func(frame []byte) [][]byte) *fakeWSConn {
	return &fakeWSConn{responder: responder, outbox: make(chan []byte, 64)}
}

func (f *fakeWSConn) WriteMessage(_ int, data []byte) error {
	for _, reply := range f.responder(data) {
		f.outbox <- reply
	}
	return nil
}

func (f *fakeWSConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.outbox
	if !ok {
		return 0, nil, fmt.Errorf("connection closed")
	}
	return 1, data, nil
}

func (f *fakeWSConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.outbox)
	}
	return nil
}

func (f *fakeWSConn) SetReadLimit(int64) {}

type fakeDialer struct {
	responder func(frame []byte) [][]byte
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (wspool.WSConn, error) {
	return newFakeWSConn(d.responder), nil
}

func dynGlobalPropsResponder(frame []byte) [][]byte {
	var req struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(frame, &req)
	b, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  map[string]any{"last_irreversible_block_num": 555},
	})
	return [][]byte{b}
}

func testDispatcher(t *testing.T, responder func([]byte) [][]byte) *dispatch.Dispatcher {
	t.Helper()

	reg, err := registry.New([]registry.RuleConfig{
		{
			URNPrefix:      "dpayd.database_api.get_dynamic_global_properties",
			URL:            "ws://upstream.test",
			Transport:      "websocket",
			TTL:            "3",
			TimeoutSeconds: 1,
			Retries:        2,
		},
	})
	require.NoError(t, err)

	memory := cacheutil.NewMemory(100)
	group := cacheutil.NewGroup(memory, nil, nil, time.Second, false, nil)

	return dispatch.New(dispatch.Config{
		Canonicalizer: urn.New(nil, 100),
		Registry:      reg,
		Cache:         group,
		Limits:        jsonrpc.Limits{},
		WSDialer:      &fakeDialer{responder: responder},
		PoolConfig: func(registry.Rule) wspool.Config {
			return wspool.Config{MinSize: 1, MaxSize: 4, MaxInFlight: 8, DialTimeout: time.Second}
		},
		RetryBackoffCap: 10 * time.Millisecond,
	})
}

func TestBuildPollDecodesLastIrreversible(t *testing.T) {
	d := testDispatcher(t, dynGlobalPropsResponder)
	poll := BuildPoll(d)

	n, err := poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(555), n)
}

func TestBuildPollSurfacesUpstreamError(t *testing.T) {
	errorResponder := func(frame []byte) [][]byte {
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.Unmarshal(frame, &req)
		b, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -1, "message": "boom"},
		})
		return [][]byte{b}
	}
	d := testDispatcher(t, errorResponder)
	poll := BuildPoll(d)

	_, err := poll(context.Background())
	assert.Error(t, err)
}
