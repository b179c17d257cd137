package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/observability"
	"github.com/your-org/faceapi/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a connected WebSocket client.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	kinds map[string]bool // empty means every kind
}

func (c *Client) wants(kind string) bool {
	return len(c.kinds) == 0 || c.kinds[kind]
}

type message struct {
	kind string
	data []byte
}

// Hub maintains active WebSocket clients and broadcasts identity events.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop until ctx ends. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "kinds", len(client.kinds))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.drop(client)
			}
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.kind) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Slow client; drop it.
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a registered client. Callers hold h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	observability.WSConnections.Dec()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent sends an identity event to every interested client.
func (h *Hub) BroadcastEvent(ev models.IdentityEvent) {
	msg, err := encode(ev)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// PublishIdentityEvent lets the hub stand in for the event bus when NATS is
// disabled.
func (h *Hub) PublishIdentityEvent(ctx context.Context, ev models.IdentityEvent) error {
	msg, err := encode(ev)
	if err != nil {
		return fmt.Errorf("marshal ws event: %w", err)
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encode(ev models.IdentityEvent) (message, error) {
	data, err := json.Marshal(dto.WSEvent{
		Type: string(ev.Kind) + "." + string(ev.Action),
		Data: dto.IdentityEvent{
			Kind:      string(ev.Kind),
			Action:    string(ev.Action),
			ID:        ev.ID,
			PersonID:  ev.PersonID,
			GroupID:   ev.GroupID,
			Timestamp: ev.Timestamp,
		},
	})
	if err != nil {
		return message{}, err
	}
	return message{kind: string(ev.Kind), data: data}, nil
}

// HandleWS upgrades the request. ?kinds=group,person limits the feed.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:  conn,
		send:  make(chan []byte, 64),
		kinds: map[string]bool{},
	}
	for _, kind := range strings.Split(c.Query("kinds"), ",") {
		if kind = strings.TrimSpace(kind); kind != "" {
			client.kinds[kind] = true
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
