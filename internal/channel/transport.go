package channel

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is one live socket. Implementations must be safe for one concurrent
// reader and one concurrent writer.
type Conn interface {
	// Read blocks until the next frame arrives or the connection drops.
	Read(ctx context.Context) ([]byte, error)

	// Write transmits one text frame.
	Write(ctx context.Context, data []byte) error

	// Close performs a clean close (code 1000).
	Close(reason string) error
}

// Dialer opens connections. The channel manager depends on this interface so
// tests can inject a scripted transport instead of a real socket.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials real WebSocket connections.
type WebSocketDialer struct{}

// Dial implements Dialer.
func (WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	//nolint:bodyclose // coder/websocket owns the hijacked response body.
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}
