// Package wshub pushes workflow notifications to WebSocket subscribers.
package wshub

import (
	"context"
	"log"
	"sync"

	"ytmp3convert/internal/core/domain"
)

// AllSessions subscribes a client to every session's notifications.
const AllSessions = "all"

// Hub maintains the set of active clients and broadcasts notifications to them.
// It implements ports.Notifier and never blocks the caller.
type Hub struct {
	// Registered clients mapped by session
	clients map[string]map[*Client]bool

	broadcast  chan domain.Notification
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *log.Logger
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.Notification, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for session, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, session)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.session] == nil {
				h.clients[client.session] = make(map[*Client]bool)
			}
			h.clients[client.session][client] = true
			h.mu.Unlock()
			h.logger.Printf("WebSocket client connected for session %s", client.session)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			h.logger.Printf("WebSocket client disconnected for session %s", client.session)

		case n := <-h.broadcast:
			h.mu.Lock()
			h.deliverLocked(n.Session, n)
			if n.Session != AllSessions {
				h.deliverLocked(AllSessions, n)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) deliverLocked(session string, n domain.Notification) {
	for client := range h.clients[session] {
		select {
		case client.send <- n:
		default:
			// Slow consumer
			h.removeLocked(client)
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.session]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
		if len(clients) == 0 {
			delete(h.clients, client.session)
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Notify implements ports.Notifier. Messages are dropped when the hub is backed up.
func (h *Hub) Notify(n domain.Notification) {
	select {
	case h.broadcast <- n:
	default:
		h.logger.Printf("WebSocket broadcast channel full, dropping message for job %s", n.JobID)
	}
}

// ClientCount reports how many clients listen on session.
func (h *Hub) ClientCount(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[session])
}
