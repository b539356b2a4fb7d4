package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Message frame written to the player's socket
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type outbound struct {
	userID string
	data   []byte
}

// Hub keeps one live connection per player and routes match events to it
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	deliver    chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		deliver:    make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and deliveries until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.deliver:
			h.deliverMessage(msg)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// a newer tab replaces the previous connection
	if old, exists := h.clients[client.userID]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("userId", client.userID))
	}

	h.clients[client.userID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.userID]; exists && current == client {
		delete(h.clients, client.userID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("userId", client.userID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) deliverMessage(msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[msg.userID]
	if !exists {
		return
	}
	select {
	case client.send <- msg.data:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("userId", msg.userID))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, client := range h.clients {
		close(client.send)
		delete(h.clients, userID)
	}
}

// SendRaw queues an encoded frame for userID. Never blocks; frames are
// dropped when the hub is saturated.
func (h *Hub) SendRaw(userID string, data []byte) {
	select {
	case h.deliver <- outbound{userID: userID, data: data}:
	default:
		h.logger.Warn("Hub delivery queue full, dropping message",
			zap.String("userId", userID))
	}
}

// Connected reports whether userID has a live connection here
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
