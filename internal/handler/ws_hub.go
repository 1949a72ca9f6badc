package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/auth"
	"github.com/freeeve/parley/internal/service"
)

// Event types sent over WebSocket. The game events mirror the orchestrator's
// update types.
const (
	EventConnected     = "connected"
	EventSubscribed    = "subscribed"
	EventPhaseChanged  = "phase_changed"
	EventPhaseResolved = "phase_resolved"
	EventMessage       = "message"
	EventGameEnded     = "game_ended"
	EventError         = "error"
)

// carriesBoard reports whether an event holds the game's current board, which
// the hub keeps for viewers who subscribe mid-game.
func carriesBoard(eventType string) bool {
	switch eventType {
	case EventPhaseChanged, EventPhaseResolved, EventGameEnded:
		return true
	}
	return false
}

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
	Data   any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	GameID string `json:"game_id"`
}

// Viewer is one spectator connection. Viewers only receive.
type Viewer struct {
	conn   *websocket.Conn
	name   string
	claims *auth.Claims // nil when the server runs without tokens
	send   chan []byte
}

func newViewer(conn *websocket.Conn, claims *auth.Claims, buf int) *Viewer {
	name := "anonymous"
	if claims != nil {
		name = claims.Viewer
	}
	return &Viewer{conn: conn, name: name, claims: claims, send: make(chan []byte, buf)}
}

func (v *Viewer) allows(gameID string) bool {
	return v.claims == nil || v.claims.Allows(gameID)
}

// Hub fans game events out to subscribed viewers and remembers the latest
// board of each game.
type Hub struct {
	mu      sync.RWMutex
	viewers map[*Viewer]struct{}
	games   map[string]map[*Viewer]struct{}
	boards  map[string][]byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		viewers: make(map[*Viewer]struct{}),
		games:   make(map[string]map[*Viewer]struct{}),
		boards:  make(map[string][]byte),
	}
}

// Register adds a viewer.
func (h *Hub) Register(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewers[v] = struct{}{}
}

// Unregister drops a viewer and its subscriptions and closes its queue.
// Calling it twice is harmless.
func (h *Hub) Unregister(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	for gameID := range h.games {
		h.leave(v, gameID)
	}
	close(v.send)
}

// Subscribe adds a viewer to a game if its token allows it.
func (h *Hub) Subscribe(v *Viewer, gameID string) error {
	if !v.allows(gameID) {
		return auth.ErrWrongGame
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.games[gameID]
	if subs == nil {
		subs = make(map[*Viewer]struct{})
		h.games[gameID] = subs
	}
	subs[v] = struct{}{}
	return nil
}

// Unsubscribe removes a viewer from a game.
func (h *Hub) Unsubscribe(v *Viewer, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(v, gameID)
}

// leave must be called with mu held.
func (h *Hub) leave(v *Viewer, gameID string) {
	subs, ok := h.games[gameID]
	if !ok {
		return
	}
	delete(subs, v)
	if len(subs) == 0 {
		delete(h.games, gameID)
	}
}

// BroadcastToGame sends an event to every viewer of a game.
func (h *Hub) BroadcastToGame(gameID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to marshal WebSocket event")
		return
	}

	if carriesBoard(event.Type) {
		h.mu.Lock()
		h.boards[gameID] = data
		h.mu.Unlock()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.games[gameID] {
		if !offer(v, data) {
			log.Warn().Str("viewer", v.name).Str("gameId", gameID).Msg("Viewer queue full, dropping event")
		}
	}
}

var _ service.Broadcaster = (*Hub)(nil)

// BroadcastGameEvent wraps data in a WSEvent for the game's viewers.
func (h *Hub) BroadcastGameEvent(gameID string, eventType string, data any) {
	h.BroadcastToGame(gameID, WSEvent{Type: eventType, GameID: gameID, Data: data})
}

// replayBoard queues the last board event of a game for a viewer that just
// subscribed. It reports whether there was one.
func (h *Hub) replayBoard(v *Viewer, gameID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, ok := h.boards[gameID]
	if !ok {
		return false
	}
	if _, live := h.viewers[v]; !live {
		return false
	}
	return offer(v, data)
}

// sendTo queues an event for one viewer.
func (h *Hub) sendTo(v *Viewer, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, live := h.viewers[v]; live {
		offer(v, data)
	}
}

// offer never blocks; the caller holds at least the read lock so the queue
// cannot be closed underneath it.
func offer(v *Viewer, data []byte) bool {
	select {
	case v.send <- data:
		return true
	default:
		return false
	}
}

// ConnectionCount returns the number of connected viewers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// GameSubscriberCount returns the number of viewers of a game.
func (h *Hub) GameSubscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}
