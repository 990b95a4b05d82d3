package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

// Message types
const (
	MessageTypeStateChanged  = "state_changed"
	MessageTypeMachineUpdate = "machine_update"
	MessageTypeSubscribe     = "subscribe"
	MessageTypeUnsubscribe   = "unsubscribe"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Machine   string      `json:"machine,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of connected observers and fans out change
// notifications. Delivery is drop-if-full per client: a slow observer loses
// pings, never blocks the engine, and recovers by re-fetching the snapshot.
type Hub struct {
	// Clients subscribed to a specific machine, by machine name
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	machine string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for machine, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, machine)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.machine]; !ok {
				h.clients[req.machine] = make(map[*Client]bool)
			}
			h.clients[req.machine][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "machine", req.machine)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.machine]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.machine)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "machine", req.machine)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to its audience: machine-tagged messages
// go to that machine's subscribers, the rest to every client.
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	if message.Machine != "" {
		if clients, ok := h.clients[message.Machine]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastState notifies every client that state changed and sends each
// machine's view to its subscribers. Observers re-fetch the snapshot API for
// anything beyond the ping.
func (h *Hub) BroadcastState(snap domain.Snapshot) {
	h.enqueue(&Message{
		Type:      MessageTypeStateChanged,
		Timestamp: snap.TakenAt,
	})
	for i := range snap.Machines {
		m := snap.Machines[i]
		h.enqueue(&Message{
			Type:      MessageTypeMachineUpdate,
			Machine:   m.Name,
			Data:      m,
			Timestamp: snap.TakenAt,
		})
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a machine subscription
func (h *Hub) Subscribe(client *Client, machine string) {
	h.subscribe <- &subscriptionRequest{
		client:  client,
		machine: machine,
	}
}

// Unsubscribe removes a client from a machine subscription
func (h *Hub) Unsubscribe(client *Client, machine string) {
	h.unsubscribe <- &subscriptionRequest{
		client:  client,
		machine: machine,
	}
}

// GetSubscriberCount returns the number of subscribers for a machine
func (h *Hub) GetSubscriberCount(machine string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[machine]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
