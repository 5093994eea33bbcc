package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// EventFeedHub manages WebSocket connections for the live transition feed.
// Every connected client receives every event; filtering is a client concern.
type EventFeedHub struct {
	clients map[*EventFeedClient]bool

	register   chan *EventFeedClient
	unregister chan *EventFeedClient
	broadcast  chan []byte

	mu sync.RWMutex

	running bool
	stopCh  chan struct{}
}

// EventFeedClient represents one connected feed consumer
type EventFeedClient struct {
	hub     *EventFeedHub
	conn    *websocket.Conn
	send    chan []byte
	closeCh chan struct{}
}

// FeedMessage is the wire envelope for feed payloads
type FeedMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewEventFeedHub creates a new event feed hub
func NewEventFeedHub() *EventFeedHub {
	return &EventFeedHub{
		clients:    make(map[*EventFeedClient]bool),
		register:   make(chan *EventFeedClient, 64),
		unregister: make(chan *EventFeedClient, 64),
		broadcast:  make(chan []byte, 256),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the hub's main loop
func (h *EventFeedHub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	debug.Info("Starting event feed hub")
	go h.run()
}

// Stop stops the hub and disconnects all clients
func (h *EventFeedHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}

	close(h.stopCh)
	h.running = false
	debug.Info("Event feed hub stopped")
}

func (h *EventFeedHub) run() {
	for {
		select {
		case <-h.stopCh:
			h.mu.Lock()
			for client := range h.clients {
				close(client.closeCh)
			}
			h.clients = make(map[*EventFeedClient]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			debug.Log("Event feed client registered", map[string]interface{}{
				"total_clients": h.ConnectionCount(),
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full, client is slow
					debug.Warning("Feed client send buffer full, dropping event")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish broadcasts one transition event to every connected client
func (h *EventFeedHub) Publish(event *models.TransitionEvent) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return
	}

	msg := FeedMessage{
		Type:    "transition",
		Payload: event,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		debug.Error("Failed to marshal transition event: %v", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		debug.Warning("Event feed broadcast buffer full, dropping event")
	}
}

// ConnectionCount returns the number of connected feed clients
func (h *EventFeedHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register registers a new client with the hub
func (h *EventFeedHub) Register(client *EventFeedClient) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *EventFeedHub) Unregister(client *EventFeedClient) {
	h.unregister <- client
}

// NewEventFeedClient creates a new feed client for an upgraded connection
func NewEventFeedClient(hub *EventFeedHub, conn *websocket.Conn) *EventFeedClient {
	return &EventFeedClient{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		closeCh: make(chan struct{}),
	}
}

// WritePump pumps feed messages from the hub to the websocket connection
func (c *EventFeedClient) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closeCh:
			return
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch any queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump drains the connection so pongs and close frames are processed.
// Feed clients are read-only consumers; anything they send is discarded.
func (c *EventFeedClient) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				debug.Warning("Feed WebSocket read error: %v", err)
			}
			break
		}
	}
}
