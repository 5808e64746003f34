package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"communitychat/chat"
	"communitychat/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the bridge only listens on loopback
	},
}

const writeWait = 10 * time.Second

// RoomEvent is one room change as pushed to bridge clients.
type RoomEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client is one subscriber of the room event stream.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans room changes out to every connected client.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	mutex      sync.RWMutex
	log        zerolog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		log:        logger.With().Str("component", "hub").Logger(),
	}
}

// Run services registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = struct{}{}
			h.mutex.Unlock()
			h.log.Debug().Msg("event client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			h.log.Debug().Msg("event client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// slow consumer
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Publish queues a room change for every client. It never blocks, so it is
// safe to call from the session observer.
func (h *Hub) Publish(c chat.Change) {
	h.publish(roomEvent(c))
}

// PublishSuggestions pushes new mention suggestions for the composer.
func (h *Hub) PublishSuggestions(videos []models.Video) {
	if videos == nil {
		videos = []models.Video{}
	}
	h.publish(RoomEvent{Type: "suggestions", Data: map[string][]models.Video{"videos": videos}})
}

func (h *Hub) publish(ev RoomEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("encode room event")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Msg("event broadcast full, dropping change")
	}
}

func roomEvent(c chat.Change) RoomEvent {
	switch c.Kind {
	case chat.ChangeHistory:
		messages := c.Messages
		if messages == nil {
			messages = []models.Message{}
		}
		return RoomEvent{Type: "history", Data: map[string]any{"messages": messages}}
	case chat.ChangeMessage:
		return RoomEvent{Type: "message", Data: c.Message}
	case chat.ChangeDeleted:
		return RoomEvent{Type: "message_deleted", Data: map[string]string{"id": c.ID}}
	case chat.ChangeOnlineCount:
		return RoomEvent{Type: "online_count", Data: map[string]int{"count": c.Count}}
	case chat.ChangeConnection:
		return RoomEvent{Type: "connection", Data: map[string]bool{"connected": c.Connected}}
	case chat.ChangeReply:
		return RoomEvent{Type: "pending_reply", Data: map[string]*models.Message{"pendingReply": c.Message}}
	}
	return RoomEvent{Type: "unknown"}
}

// HandleEvents upgrades the request and streams room changes to it.
func (h *Hub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	client := &Client{
		Conn: conn,
		Send: make(chan []byte, 64),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump(h)
}

// readPump only watches for the client going away; inbound messages are ignored.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Msg("event client error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
