package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygkn/video-sync-watch/domain"
)

type echoHandler struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	transport    []error
}

func (e *echoHandler) Connect(conn domain.Connection) {
	e.mu.Lock()
	e.connected++
	e.mu.Unlock()
	conn.Send([]byte(`{"type":"welcome"}`))
}

func (e *echoHandler) Handle(conn domain.Connection, data []byte) {
	conn.Send(data)
}

func (e *echoHandler) Disconnect(conn domain.Connection) {
	e.mu.Lock()
	e.disconnected++
	e.mu.Unlock()
}

func (e *echoHandler) TransportError(conn domain.Connection, err error) {
	e.mu.Lock()
	e.transport = append(e.transport, err)
	e.mu.Unlock()
}

func (e *echoHandler) transportErrors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.transport...)
}

func (e *echoHandler) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected, e.disconnected
}

func TestConn_SendAfterClose(t *testing.T) {
	c := NewConn("c1", nil, &echoHandler{})
	require.True(t, c.Open())

	c.markClosed()

	assert.False(t, c.Open())
	assert.ErrorIs(t, c.Send([]byte("x")), ErrConnClosed)
}

func TestConn_SendBufferFull(t *testing.T) {
	c := NewConn("c1", nil, &echoHandler{})

	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}

	assert.ErrorIs(t, c.Send([]byte("x")), ErrSendBufferFull)
}

func TestHandlerAndDialer_RoundTrip(t *testing.T) {
	sessions := &echoHandler{}
	srv := httptest.NewServer(NewHandler(sessions, nil, 0))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := NewDialer(time.Second).Dial(context.Background(), url)
	require.NoError(t, err)

	welcome, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"welcome"}`, string(welcome))

	require.NoError(t, conn.WriteMessage([]byte(`{"type":"ping"}`)))
	echoed, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(echoed))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		connected, disconnected := sessions.counts()
		return connected == 1 && disconnected == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDialer_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewDialer(time.Second).Dial(ctx, "ws://127.0.0.1:1/ws")
	assert.Error(t, err)
}

func dialRaw(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	return conn
}

func TestHandler_FrameWithinLimitSurvives(t *testing.T) {
	sessions := &echoHandler{}
	conn := dialRaw(t, NewHandler(sessions, nil, 0))

	payload := `{"type":"sync","action":"chat","data":"` + strings.Repeat("x", int(DefaultMaxMessageSize)-100) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, echoed, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Len(t, echoed, len(payload))

	_, disconnected := sessions.counts()
	assert.Zero(t, disconnected)
	assert.Empty(t, sessions.transportErrors())
}

func TestHandler_OversizedFrameReportsTransportError(t *testing.T) {
	sessions := &echoHandler{}
	conn := dialRaw(t, NewHandler(sessions, nil, 64))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 128))))

	require.Eventually(t, func() bool {
		_, disconnected := sessions.counts()
		return disconnected == 1
	}, 2*time.Second, 10*time.Millisecond)

	errs := sessions.transportErrors()
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], websocket.ErrReadLimit))
}

func TestHandler_NormalCloseIsNotATransportError(t *testing.T) {
	sessions := &echoHandler{}
	conn := dialRaw(t, NewHandler(sessions, nil, 0))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	require.Eventually(t, func() bool {
		_, disconnected := sessions.counts()
		return disconnected == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sessions.transportErrors())
}

func TestIsExpectedClose(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"normal closure", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"no status", &websocket.CloseError{Code: websocket.CloseNoStatusReceived}, true},
		{"abnormal closure", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"read limit", websocket.ErrReadLimit, false},
		{"other", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isExpectedClose(tt.err))
		})
	}
}
