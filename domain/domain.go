package domain

import (
	"context"
	"encoding/json"
)

// Event types exchanged between the relay and its clients.
const (
	TypeWelcome           = "welcome"
	TypeAuth              = "auth"
	TypeAuthenticated     = "authenticated"
	TypeParticipantUpdate = "participant-update"
	TypeSync              = "sync"
	TypeError             = "error"
)

// ActionStateUpdate is the only sync action the relay inspects. Every other
// action is forwarded untouched.
const ActionStateUpdate = "state-update"

// Event is the JSON frame carried by every text message. Only the fields
// relevant to Type are populated.
type Event struct {
	Type         string          `json:"type"`
	Message      string          `json:"message,omitempty"`
	AccessKey    string          `json:"accessKey,omitempty"`
	Participants int             `json:"participants,omitempty"`
	Action       string          `json:"action,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the event carries a non-null data payload.
func (e Event) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// PlaybackState is a snapshot of the shared video.
type PlaybackState struct {
	CurrentTime  float64 `json:"currentTime"`
	Paused       bool    `json:"paused"`
	PlaybackRate float64 `json:"playbackRate"`
}

func NewWelcome(msg string) Event { return Event{Type: TypeWelcome, Message: msg} }

func NewError(msg string) Event { return Event{Type: TypeError, Message: msg} }

func NewAuth(key string) Event { return Event{Type: TypeAuth, AccessKey: key} }

func NewAuthenticated(participants int) Event {
	return Event{Type: TypeAuthenticated, Participants: participants}
}

func NewParticipantUpdate(participants int) Event {
	return Event{Type: TypeParticipantUpdate, Participants: participants}
}

func NewSync(action string, data json.RawMessage) Event {
	return Event{Type: TypeSync, Action: action, Data: data}
}

// NewStateUpdate wraps a playback state in a sync event.
func NewStateUpdate(state PlaybackState) (Event, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return Event{}, err
	}
	return NewSync(ActionStateUpdate, data), nil
}

// Connection is the relay's view of one client transport.
type Connection interface {
	ID() string
	Send(data []byte) error
	Open() bool
	Close() error
}

// Registry tracks the relay's connections and their authentication flag.
type Registry interface {
	Add(conn Connection)
	Remove(conn Connection) (wasAuthenticated bool)
	MarkAuthenticated(conn Connection) bool
	IsAuthenticated(conn Connection) bool
	Count() int
	Size() int
	ForEachAuthenticated(exclude Connection, fn func(Connection))
}

// SessionHandler receives transport notifications for relay connections.
type SessionHandler interface {
	Connect(conn Connection)
	Handle(conn Connection, data []byte)
	Disconnect(conn Connection)
	TransportError(conn Connection, err error)
}

// ClientConn is the client side of a relay connection.
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens client connections to a relay.
type Dialer interface {
	Dial(ctx context.Context, url string) (ClientConn, error)
}
