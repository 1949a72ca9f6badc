package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/auth"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 1024
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Read-only feed; access is controlled by viewer tokens.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler serves the spectator feed.
type WSHandler struct {
	hub *Hub
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// ServeWS handles GET /ws. Token checks, when enabled, already ran in
// auth.Middleware; ?game= subscribes on connect.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	v := newViewer(conn, auth.ClaimsFromContext(r.Context()), sendBufSize)
	h.hub.Register(v)
	h.hub.sendTo(v, WSEvent{Type: EventConnected, Data: map[string]string{"viewer": v.name}})
	if gameID := r.URL.Query().Get("game"); gameID != "" {
		h.subscribe(v, gameID)
	}

	go h.write(v)
	go h.read(v)

	log.Info().Str("viewer", v.name).Int("total", h.hub.ConnectionCount()).Msg("Viewer connected")
}

// subscribe acknowledges the subscription, then replays the current board so
// a late viewer does not wait a whole phase for it.
func (h *WSHandler) subscribe(v *Viewer, gameID string) {
	if err := h.hub.Subscribe(v, gameID); err != nil {
		h.hub.sendTo(v, WSEvent{Type: EventError, GameID: gameID, Data: map[string]string{"error": err.Error()}})
		return
	}
	h.hub.sendTo(v, WSEvent{Type: EventSubscribed, GameID: gameID, Data: map[string]any{}})
	h.hub.replayBoard(v, gameID)
}

// read handles subscribe/unsubscribe requests until the viewer goes away.
func (h *WSHandler) read(v *Viewer) {
	defer func() {
		h.hub.Unregister(v)
		v.conn.Close()
		log.Info().Str("viewer", v.name).Msg("Viewer disconnected")
	}()

	v.conn.SetReadLimit(maxMsgSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("viewer", v.name).Msg("Viewer closed unexpectedly")
			}
			return
		}
		if json.Unmarshal(data, &msg) != nil || msg.GameID == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			h.subscribe(v, msg.GameID)
		case "unsubscribe":
			h.hub.Unsubscribe(v, msg.GameID)
		}
	}
}

// write sends one frame per queued event and keeps the connection alive with
// pings. It exits when the hub closes the queue.
func (h *WSHandler) write(v *Viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
