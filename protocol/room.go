package protocol

import (
	"encoding/json"
	"sync"
)

// Room holds the last playback state recorded at the relay. Each update
// replaces the previous one; arrival order decides the winner.
type Room struct {
	state json.RawMessage
	mu    sync.RWMutex
}

func NewRoom() *Room {
	return &Room{}
}

func (r *Room) Set(data json.RawMessage) {
	cp := make(json.RawMessage, len(data))
	copy(cp, data)

	r.mu.Lock()
	r.state = cp
	r.mu.Unlock()
}

// State returns the recorded payload exactly as it was received.
func (r *Room) State() (json.RawMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.state != nil
}
