package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"carwash-ops-server/models"
)

// Message is the envelope of every frame pushed to admin clients
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

const (
	MessageOrderStatus   = "order_status"
	MessageOperatorAlert = "operator_alert"
	MessagePong          = "pong"
)

// Hub fans admin events (order status changes, operator alerts) out to
// every connected admin panel.
type Hub struct {
	clients map[*Client]bool

	// Broadcast channel for messages to all clients
	Broadcast chan *Message

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	done chan struct{}
	mu   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan *Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("🔌 Admin client registered: principal=%s", client.PrincipalID)

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			log.Printf("🔌 Admin client unregistered: principal=%s", client.PrincipalID)

		case message := <-h.Broadcast:
			h.broadcastMessage(message)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// broadcastMessage sends a message to all connected clients
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			log.Printf("⚠️ Admin client %s is too slow, dropping connection", client.PrincipalID)
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.Broadcast <- message:
	default:
		log.Printf("⚠️ Hub broadcast channel is full, dropping %s message", message.Type)
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// PublishOrderStatus pushes a committed status change to admin clients
func (h *Hub) PublishOrderStatus(ctx context.Context, event models.OrderStatusEvent) error {
	h.enqueue(&Message{Type: MessageOrderStatus, Timestamp: time.Now(), Data: event})
	return nil
}

// BroadcastAlert pushes an operator alert to admin clients
func (h *Hub) BroadcastAlert(alert models.OperatorAlert) {
	h.enqueue(&Message{Type: MessageOperatorAlert, Timestamp: time.Now(), Data: alert})
}

// ClientCount returns the number of connected admin clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
