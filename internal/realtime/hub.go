// Package realtime implements the WebSocket push side of §4.5: a
// room-keyed hub broadcasting gap updates and comment notifications to
// connected clients. Adapted almost directly from the teacher's
// internal/websocket hub, with clients joined to rooms instead of
// scoped by organization — here a room is `gap-<id>` or `user-<id>`
// rather than a tenant.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gapopshub/api/internal/authz"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/gapcore"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains room membership and broadcasts messages to the clients
// in a room. All map access goes through the run loop's channels so no
// external lock is needed, mirroring the teacher's register/unregister/
// broadcast channel design.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan roomMembership
	unregister chan roomMembership
	broadcast  chan roomMessage
	mu         sync.RWMutex
}

type roomMembership struct {
	room   string
	client *Client
}

type roomMessage struct {
	room    string
	message []byte
}

// Client is a single authenticated WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	role   models.Role

	gaps *db.GapStore
	core *gapcore.Core

	joinedGaps map[int64]bool
}

// message is the wire envelope for both inbound client commands
// (join-gap, leave-gap) and outbound pushes (gap:updated, new-comment,
// poc-comment-notification, error).
type message struct {
	Type    string      `json:"type"`
	GapID   int64       `json:"gapId,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewHub creates an empty hub. Call Run in its own goroutine before
// serving any connections.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan roomMembership),
		unregister: make(chan roomMembership),
		broadcast:  make(chan roomMessage, sendBuffer),
	}
}

// Run drains the hub's channels until ctx-independent shutdown; it is
// meant to run for the lifetime of the process.
func (h *Hub) Run() {
	for {
		select {
		case m := <-h.register:
			h.mu.Lock()
			if h.rooms[m.room] == nil {
				h.rooms[m.room] = make(map[*Client]bool)
			}
			h.rooms[m.room][m.client] = true
			h.mu.Unlock()

		case m := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[m.room]; ok {
				delete(clients, m.client)
				if len(clients) == 0 {
					delete(h.rooms, m.room)
				}
			}
			h.mu.Unlock()

		case rm := <-h.broadcast:
			h.mu.RLock()
			var stale []*Client
			for client := range h.rooms[rm.room] {
				select {
				case client.send <- rm.message:
				default:
					stale = append(stale, client)
				}
			}
			h.mu.RUnlock()

			if len(stale) > 0 {
				h.mu.Lock()
				for _, client := range stale {
					if clients, ok := h.rooms[rm.room]; ok {
						delete(clients, client)
					}
					close(client.send)
				}
				h.mu.Unlock()
			}
		}
	}
}

// Publish sends eventType/payload to every client joined to room. It
// implements internal/notifier.RoomPublisher.
func (h *Hub) Publish(room string, eventType string, payload interface{}) {
	data, err := json.Marshal(message{Type: eventType, Payload: payload})
	if err != nil {
		logger.Realtime().Error().Err(err).Str("room", room).Msg("failed to marshal realtime message")
		return
	}
	select {
	case h.broadcast <- roomMessage{room: room, message: data}:
	default:
		logger.Realtime().Warn().Str("room", room).Msg("broadcast channel full, dropping message")
	}
}

// RoomCount reports how many clients are currently joined to room, used
// by health/debug endpoints.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ServeClient upgrades an authenticated HTTP request to a WebSocket
// connection and starts its pumps. The caller has already authenticated
// userID/role against the session cookie (§4.5).
func (h *Hub) ServeClient(w http.ResponseWriter, r *http.Request, userID string, role models.Role, gaps *db.GapStore, core *gapcore.Core) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub: h, conn: conn, send: make(chan []byte, sendBuffer),
		userID: userID, role: role, gaps: gaps, core: core,
	}

	h.register <- roomMembership{room: "user-" + userID, client: client}

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- roomMembership{room: "user-" + c.userID, client: c}
		c.leaveAllGapRooms()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.joinedGaps = make(map[int64]bool)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var in message
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}

		switch in.Type {
		case "join-gap":
			if c.tryJoinGap(in.GapID) {
				c.joinedGaps[in.GapID] = true
			}
		case "leave-gap":
			c.hub.unregister <- roomMembership{room: gapRoom(in.GapID), client: c}
			delete(c.joinedGaps, in.GapID)
		}
	}
}

func (c *Client) tryJoinGap(gapID int64) bool {
	gap, err := c.gaps.Get(context.Background(), gapID)
	if err != nil {
		c.sendError("gap not found")
		return false
	}
	scope, err := c.core.Scope(context.Background(), gap)
	if err != nil {
		c.sendError("failed to resolve gap scope")
		return false
	}
	if !authz.CanReadGap(c.userID, c.role, scope) {
		c.sendError("forbidden")
		return false
	}
	c.hub.register <- roomMembership{room: gapRoom(gapID), client: c}
	return true
}

func (c *Client) leaveAllGapRooms() {
	for gapID := range c.joinedGaps {
		c.hub.unregister <- roomMembership{room: gapRoom(gapID), client: c}
	}
}

func (c *Client) sendError(reason string) {
	data, err := json.Marshal(message{Type: "error", Payload: reason})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func gapRoom(gapID int64) string {
	return fmt.Sprintf("gap-%d", gapID)
}
