package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

// BroadcastMessage is the envelope pushed to dashboard clients.
type BroadcastMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketHub manages dashboard WebSocket connections and broadcasts
// workflow events to them.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan BroadcastMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	mutex      sync.RWMutex
}

// WebSocketClient represents one connected dashboard.
type WebSocketClient struct {
	hub     *WebSocketHub
	conn    *websocket.Conn
	send    chan []byte
	actorID string
}

// NewWebSocketHub creates a new hub.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
	}
}

// Start runs the hub loop. Call in a goroutine.
func (h *WebSocketHub) Start() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Infof("WebSocket client registered for actor %s", client.actorID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			log.Infof("WebSocket client unregistered for actor %s", client.actorID)

		case message := <-h.broadcast:
			data := serializeMessage(message)
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// RegisterClient attaches a new websocket connection to the hub.
func (h *WebSocketHub) RegisterClient(conn *websocket.Conn, actorID string) {
	client := &WebSocketClient{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		actorID: actorID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// Broadcast pushes a message to all connected clients.
func (h *WebSocketHub) Broadcast(message BroadcastMessage) {
	h.broadcast <- message
}

// ConnectedClients returns the number of connected clients.
func (h *WebSocketHub) ConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func serializeMessage(message BroadcastMessage) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		log.Errorf("Failed to serialize broadcast message: %v", err)
		return []byte("{}")
	}
	return data
}

// readPump drains the connection so pings and close frames are processed.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("WebSocket read error for actor %s: %v", c.actorID, err)
			}
			break
		}
	}
}

// writePump pumps hub messages to the connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
