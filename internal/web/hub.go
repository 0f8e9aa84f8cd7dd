package web

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"neurogallery/server/internal/state"
)

const (
	// pongWait bounds how long a silent connection is kept alive; pings go
	// out well inside that window.
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second

	// Clients only receive; anything beyond a trivial frame is noise.
	maxInboundBytes = 512
)

// Client represents a WebSocket client connection
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *EventHub
	mu     sync.Mutex
	closed bool
}

// EventHub manages WebSocket connections and broadcasts library state changes
// to every connected client. Slow clients are skipped, never waited on.
type EventHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan state.Event
	mu         sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan state.Event, 1000),
	}
}

// Run starts the hub's event loop
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.broadcast:
			h.broadcastEvent(ev)
		}
	}
}

func (h *EventHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[Hub] Client connected: %s (total: %d)", client.ID, len(h.clients))

	go client.writePump()
}

func (h *EventHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		log.Printf("[Hub] Client disconnected: %s (total: %d)", client.ID, len(h.clients))
	}
}

// broadcastEvent fans one state change out to all connected clients.
func (h *EventHub) broadcastEvent(ev state.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(map[string]interface{}{
		"type": "event",
		"data": ev,
		"time": time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[Hub] Failed to marshal event: %v", err)
		return
	}

	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// Client send buffer full, skip
			log.Printf("[Hub] Client send buffer full: %s", client.ID)
		}
	}
}

// Broadcast queues a state change for delivery to all connected clients.
// Safe to call from the controller's listener goroutine; a full queue drops
// the event rather than blocking a mutation.
func (h *EventHub) Broadcast(ev state.Event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("[Hub] Broadcast channel full, dropping event %s", ev.Type)
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// send writes one frame under the client's write lock, marking the client
// closed on failure so the ping ticker stops touching a dead connection.
func (c *Client) send(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.Conn.WriteMessage(messageType, payload); err != nil {
		c.closed = true
		return err
	}
	return nil
}

// writePump delivers queued events to the connection and keeps it alive with
// periodic pings. It exits when the hub closes the Send channel or any write
// fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.send(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.send(websocket.TextMessage, message); err != nil {
				log.Printf("[Hub] Write to %s failed: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			if err := c.send(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.Conn.Close()
}

// readPump drains the connection so pong and close frames are processed,
// and refreshes the read deadline on each pong. Inbound payloads are
// discarded; the stream is one-way.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(maxInboundBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] Client %s dropped: %v", c.ID, err)
			}
			return
		}
	}
}
