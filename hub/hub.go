package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ygkn/video-sync-watch/domain"
)

type session struct {
	conn          domain.Connection
	authenticated bool
}

// Hub is the registry of every connection attached to the room.
type Hub struct {
	sessions map[string]*session
	mu       sync.RWMutex
}

func New() *Hub {
	return &Hub{
		sessions: make(map[string]*session),
	}
}

func (h *Hub) Add(conn domain.Connection) {
	h.mu.Lock()
	h.sessions[conn.ID()] = &session{conn: conn}
	count := len(h.sessions)
	h.mu.Unlock()

	log.Info().Str("clientId", conn.ID()).Int("connections", count).Msg("client connected")
}

// Remove deletes conn and reports whether it had authenticated.
func (h *Hub) Remove(conn domain.Connection) bool {
	h.mu.Lock()
	s, exists := h.sessions[conn.ID()]
	if exists {
		delete(h.sessions, conn.ID())
	}
	count := len(h.sessions)
	h.mu.Unlock()

	if !exists {
		return false
	}

	log.Info().Str("clientId", conn.ID()).Int("connections", count).Msg("client disconnected")
	return s.authenticated
}

// MarkAuthenticated flags conn as authenticated. It returns false if conn is
// unknown or was already authenticated.
func (h *Hub) MarkAuthenticated(conn domain.Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, exists := h.sessions[conn.ID()]
	if !exists || s.authenticated {
		return false
	}
	s.authenticated = true
	return true
}

func (h *Hub) IsAuthenticated(conn domain.Connection) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, exists := h.sessions[conn.ID()]
	return exists && s.authenticated
}

// Count returns the number of authenticated connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, s := range h.sessions {
		if s.authenticated {
			n++
		}
	}
	return n
}

// Size returns the number of connections, authenticated or not.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ForEachAuthenticated calls fn for every authenticated connection with an
// open transport, skipping exclude. fn runs on a snapshot taken under the
// lock, so it may remove connections from the hub.
func (h *Hub) ForEachAuthenticated(exclude domain.Connection, fn func(domain.Connection)) {
	h.mu.RLock()
	targets := make([]domain.Connection, 0, len(h.sessions))
	for id, s := range h.sessions {
		if !s.authenticated {
			continue
		}
		if exclude != nil && id == exclude.ID() {
			continue
		}
		targets = append(targets, s.conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if !conn.Open() {
			continue
		}
		fn(conn)
	}
}
