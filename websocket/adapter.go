package websocket

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ygkn/video-sync-watch/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256

	// DefaultMaxMessageSize bounds inbound frames. Relayed sync actions
	// carry arbitrary payloads, so it is sized well above a state update.
	DefaultMaxMessageSize int64 = 64 << 10
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

type Conn struct {
	id        string
	ws        *websocket.Conn
	readLimit int64
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	handler   domain.SessionHandler
}

func NewConn(id string, ws *websocket.Conn, h domain.SessionHandler) *Conn {
	return &Conn{
		id:        id,
		ws:        ws,
		readLimit: DefaultMaxMessageSize,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		handler:   h,
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues data for the write pump without blocking.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) Open() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Conn) Close() error {
	c.markClosed()
	return c.ws.Close()
}

func (c *Conn) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) Start() {
	c.handler.Connect(c)
	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.markClosed()
		c.ws.Close()
		c.handler.Disconnect(c)
	}()

	c.ws.SetReadLimit(c.readLimit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.Open() && !isExpectedClose(err) {
				c.handler.TransportError(c, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			log.Debug().Str("clientId", c.id).Int("messageType", msgType).Msg("ignoring non-text frame")
			continue
		}

		c.handler.Handle(c, data)
	}
}

// isExpectedClose reports whether err is a close frame from a peer that
// left normally. Read limits, deadlines and resets are not.
func isExpectedClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Str("clientId", c.id).Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler upgrades HTTP requests and attaches each socket to the session
// handler.
type Handler struct {
	upgrader       websocket.Upgrader
	sessions       domain.SessionHandler
	maxMessageSize int64
}

// NewHandler builds the upgrade endpoint. A nil checkOrigin accepts every
// origin; browser extensions connect from their own origin. A
// maxMessageSize of zero selects DefaultMaxMessageSize.
func NewHandler(sessions domain.SessionHandler, checkOrigin func(r *http.Request) bool, maxMessageSize int64) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sessions:       sessions,
		maxMessageSize: maxMessageSize,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrade error")
		return
	}

	conn := NewConn(uuid.NewString(), ws, h.sessions)
	conn.readLimit = h.maxMessageSize
	conn.Start()
}
