package ws

import (
	"sync"

	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
)

// Hub indexes live clients by identity and groups them into ride rooms
// for location fan-out. It is the forwarding half of the notification
// relay and the role-channel broadcaster for the dispatcher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // rideID -> identity -> client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[c.identity]; ok && old != c {
		old.close()
	}
	h.clients[c.identity] = c
	observability.WSConnections.Set(float64(len(h.clients)))
}

// remove drops the client and reports whether it still owned its
// identity. False means a replacement connection took over in the
// meantime and the identity is still live.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	owned := false
	if cur, ok := h.clients[c.identity]; ok && cur == c {
		delete(h.clients, c.identity)
		owned = true
	}
	for rideID, members := range h.rooms {
		if members[c.identity] == c {
			delete(members, c.identity)
		}
		if len(members) == 0 {
			delete(h.rooms, rideID)
		}
	}
	observability.WSConnections.Set(float64(len(h.clients)))
	return owned
}

// SendTo forwards one event to a connected identity. The boolean is
// the delivery verdict the relay and dispatcher key on.
func (h *Hub) SendTo(identity, msgType string, payload any) bool {
	h.mu.RLock()
	c, ok := h.clients[identity]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Send(msgType, payload) == nil
}

// BroadcastToRole pushes one event to every connected client of the
// given role. Dead or slow clients are skipped silently.
func (h *Hub) BroadcastToRole(role presence.Role, msgType string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.role == role {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		_ = c.Send(msgType, payload)
	}
}

func (h *Hub) joinRoom(rideID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[rideID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[rideID] = members
	}
	members[c.identity] = c
}

// BroadcastRoom fans one event out to a ride room, skipping the sender.
func (h *Hub) BroadcastRoom(rideID, senderID, msgType string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[rideID]))
	for id, c := range h.rooms[rideID] {
		if id != senderID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		_ = c.Send(msgType, payload)
	}
}
