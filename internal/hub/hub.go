// Package hub tracks connected realtime clients and fans out board events.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Client is a connected board client able to receive broadcast frames.
// Send must not block indefinitely: a client that cannot accept a frame
// returns an error and is pruned by the hub.
type Client interface {
	Send(data []byte) error
	Close()
}

// Hub is the registry of currently connected clients.
type Hub struct {
	mu      sync.Mutex
	clients map[Client]bool
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{clients: make(map[Client]bool)}
}

// Register adds a client to the hub. The caller must ensure any bootstrap
// frame was queued first; a frame queued before registration is delivered
// before any broadcast the client is registered for.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	log.Debug().Int("clients", len(h.clients)).Msg("client connected")
}

// Bootstrap queues the greeting frame on the client and registers it under a
// single lock, so no broadcast can slip in between.
func (h *Hub) Bootstrap(c Client, greeting []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := c.Send(greeting); err != nil {
		return fmt.Errorf("send bootstrap frame: %w", err)
	}
	h.clients[c] = true
	log.Debug().Int("clients", len(h.clients)).Msg("client connected")
	return nil
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		log.Debug().Int("clients", len(h.clients)).Msg("client disconnected")
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast serializes the payload once and attempts delivery to every
// registered client. A client whose delivery fails is removed as part of the
// same call; individual failures are never surfaced to the caller. The only
// returned error is a payload serialization failure.
func (h *Hub) Broadcast(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}

	h.mu.Lock()
	targets := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var dead []Client
	for _, c := range targets {
		if err := c.Send(data); err != nil {
			dead = append(dead, c)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, c := range dead {
			delete(h.clients, c)
		}
		h.mu.Unlock()
		for _, c := range dead {
			c.Close()
		}
		log.Debug().Int("pruned", len(dead)).Msg("pruned unreachable clients")
	}
	return nil
}
