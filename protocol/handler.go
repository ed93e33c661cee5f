package protocol

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ygkn/video-sync-watch/domain"
	"github.com/ygkn/video-sync-watch/metrics"
)

// Messages carried by welcome and error events.
const (
	WelcomeMessage        = "Connected to sync server"
	ErrInvalidFormat      = "Invalid message format"
	ErrUnauthorized       = "Unauthorized"
	ErrUnknownMessageType = "Unknown message type"
	ErrInvalidAccessKey   = "Invalid access key"
)

// Handler implements the relay side of the sync protocol. Its methods must
// not run concurrently; wrap it in a Dispatcher when wiring transports.
type Handler struct {
	registry  domain.Registry
	room      *Room
	accessKey string
	metrics   metrics.Recorder
}

func NewHandler(registry domain.Registry, room *Room, accessKey string, rec metrics.Recorder) *Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Handler{
		registry:  registry,
		room:      room,
		accessKey: accessKey,
		metrics:   rec,
	}
}

func (h *Handler) Connect(conn domain.Connection) {
	h.registry.Add(conn)
	h.metrics.ConnectionOpened()
	h.send(conn, domain.NewWelcome(WelcomeMessage))
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var msg domain.Event
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Str("clientId", conn.ID()).Err(err).Msg("invalid message")
		h.reject(conn, ErrInvalidFormat)
		return
	}
	h.metrics.MessageReceived(metricType(msg.Type))

	switch msg.Type {
	case domain.TypeAuth:
		h.handleAuth(conn, msg)
	case domain.TypeSync:
		if !h.registry.IsAuthenticated(conn) {
			h.reject(conn, ErrUnauthorized)
			return
		}
		h.handleSync(conn, msg, data)
	default:
		log.Debug().Str("clientId", conn.ID()).Str("type", msg.Type).Msg("unknown message type")
		h.reject(conn, ErrUnknownMessageType)
	}
}

func (h *Handler) handleAuth(conn domain.Connection, msg domain.Event) {
	if msg.AccessKey != h.accessKey {
		log.Warn().Str("clientId", conn.ID()).Msg("auth rejected")
		h.metrics.AuthAttempt(false)
		h.reject(conn, ErrInvalidAccessKey)
		return
	}
	h.metrics.AuthAttempt(true)

	joined := h.registry.MarkAuthenticated(conn)
	count := h.registry.Count()
	h.metrics.Participants(count)
	log.Info().Str("clientId", conn.ID()).Int("participants", count).Msg("client authenticated")

	h.send(conn, domain.NewAuthenticated(count))
	if joined {
		h.broadcast(conn, domain.NewParticipantUpdate(count))
	}

	if state, ok := h.room.State(); ok {
		h.send(conn, domain.NewSync(domain.ActionStateUpdate, state))
	}
}

// relayedSync is the outbound shape of a sync event. Action is a pointer
// so an explicit empty action survives the round trip.
type relayedSync struct {
	Type   string          `json:"type"`
	Action *string         `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (h *Handler) handleSync(conn domain.Connection, msg domain.Event, raw []byte) {
	if msg.Action == domain.ActionStateUpdate && msg.HasData() {
		h.room.Set(msg.Data)
		h.metrics.StateUpdated()
		log.Debug().Str("clientId", conn.ID()).RawJSON("state", msg.Data).Msg("room state updated")
	}

	var out relayedSync
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn().Str("clientId", conn.ID()).Err(err).Msg("invalid sync message")
		h.reject(conn, ErrInvalidFormat)
		return
	}
	out.Type = domain.TypeSync

	data, err := json.Marshal(out)
	if err != nil {
		log.Error().Str("clientId", conn.ID()).Err(err).Msg("marshal error")
		return
	}
	h.fanout(conn, domain.TypeSync, data)
}

func (h *Handler) Disconnect(conn domain.Connection) {
	wasAuthenticated := h.registry.Remove(conn)
	h.metrics.ConnectionClosed()
	if !wasAuthenticated {
		return
	}

	count := h.registry.Count()
	h.metrics.Participants(count)
	h.broadcast(nil, domain.NewParticipantUpdate(count))
}

// TransportError only logs; the transport's close notification drives cleanup.
func (h *Handler) TransportError(conn domain.Connection, err error) {
	log.Error().Str("clientId", conn.ID()).Err(err).Msg("transport error")
}

func (h *Handler) reject(conn domain.Connection, reason string) {
	h.metrics.ProtocolError(reason)
	h.send(conn, domain.NewError(reason))
}

func (h *Handler) send(conn domain.Connection, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Str("clientId", conn.ID()).Str("type", ev.Type).Err(err).Msg("marshal error")
		return
	}
	h.deliver(conn, ev.Type, data)
}

func (h *Handler) broadcast(sender domain.Connection, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Str("type", ev.Type).Err(err).Msg("marshal error")
		return
	}

	h.fanout(sender, ev.Type, data)
}

func (h *Handler) fanout(sender domain.Connection, eventType string, data []byte) {
	h.registry.ForEachAuthenticated(sender, func(conn domain.Connection) {
		h.deliver(conn, eventType, data)
	})
}

// metricType bounds the label set; the type string comes from the client.
func metricType(t string) string {
	switch t {
	case domain.TypeAuth, domain.TypeSync:
		return t
	default:
		return "unknown"
	}
}

func (h *Handler) deliver(conn domain.Connection, eventType string, data []byte) {
	if err := conn.Send(data); err != nil {
		log.Warn().Str("clientId", conn.ID()).Str("type", eventType).Err(err).Msg("delivery failed")
		h.metrics.DeliveryFailed(eventType)
		return
	}
	h.metrics.MessageSent(eventType)
}
