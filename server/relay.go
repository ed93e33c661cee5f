package server

import (
	"context"
	"net/http"

	"github.com/ygkn/video-sync-watch/hub"
	"github.com/ygkn/video-sync-watch/metrics"
	"github.com/ygkn/video-sync-watch/protocol"
	ws "github.com/ygkn/video-sync-watch/websocket"
)

type RelayOptions struct {
	AccessKey      string
	QueueSize      int
	MaxMessageSize int64
	AllowedOrigins []string
	Recorder       metrics.Recorder
	MetricsHandler http.Handler
}

// Relay wires the single room: registry, room state, protocol handler and
// the dispatcher that serializes them.
type Relay struct {
	registry   *hub.Hub
	room       *protocol.Room
	dispatcher *protocol.Dispatcher
	router     http.Handler
}

func NewRelay(opts RelayOptions) *Relay {
	registry := hub.New()
	room := protocol.NewRoom()
	handler := protocol.NewHandler(registry, room, opts.AccessKey, opts.Recorder)
	dispatcher := protocol.NewDispatcher(handler, opts.QueueSize)

	r := &Relay{
		registry:   registry,
		room:       room,
		dispatcher: dispatcher,
	}
	r.router = NewRouter(Options{
		WebSocket:      ws.NewHandler(dispatcher, nil, opts.MaxMessageSize),
		Metrics:        opts.MetricsHandler,
		Stats:          r.Stats,
		AllowedOrigins: opts.AllowedOrigins,
	})
	return r
}

// Run processes protocol events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	r.dispatcher.Run(ctx)
}

func (r *Relay) Handler() http.Handler {
	return r.router
}

func (r *Relay) Stats() Stats {
	_, hasState := r.room.State()
	return Stats{
		Connections:  r.registry.Size(),
		Participants: r.registry.Count(),
		HasState:     hasState,
	}
}
