package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ygkn/video-sync-watch/domain"
)

// Dialer opens client connections to a relay.
type Dialer struct {
	dialer *websocket.Dialer
}

func NewDialer(handshakeTimeout time.Duration) *Dialer {
	return &Dialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (d *Dialer) Dial(ctx context.Context, url string) (domain.ClientConn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(DefaultMaxMessageSize)
	return &clientConn{ws: ws}, nil
}

type clientConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// ReadMessage returns the next text frame. Control frames are handled by
// gorilla; ping replies go out automatically.
func (c *clientConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *clientConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
