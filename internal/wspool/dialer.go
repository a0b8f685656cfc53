package wspool

import (
	"context"

	"github.com/gorilla/websocket"
)

// WSConn is the subset of *websocket.Conn the pool depends on. Defined
// as an interface so tests can substitute a fake transport.
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadLimit(limit int64)
}

// Dialer opens a new WSConn to url. Swappable in tests.
type Dialer interface {
	Dial(ctx context.Context, url string) (WSConn, error)
}

// GorillaDialer dials with gorilla/websocket.DefaultDialer, or a caller
// supplied *websocket.Dialer (for TLS config, proxies, handshake
// timeouts, and the like).
type GorillaDialer struct {
	Dialer *websocket.Dialer
}

func (g GorillaDialer) Dial(ctx context.Context, url string) (WSConn, error) {
	d := g.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
