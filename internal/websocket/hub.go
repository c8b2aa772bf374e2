// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package websocket pushes live dashboard updates to connected browsers:
// refreshed camera lists, feed errors, and media lifecycle transitions.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/metrics"
	"github.com/tomtom215/trafficlens/internal/models"
)

// Message types for WebSocket communication
const (
	MessageTypeCamerasUpdated = "cameras_updated"
	MessageTypeFeedError      = "feed_error"
	MessageTypeMediaState     = "media_state"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeRevalidate     = "revalidate"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client

	// done is closed when the hub stops accepting lifecycle events, so a
	// client read pump that outlives the hub can still exit.
	done     chan struct{}
	doneOnce sync.Once

	mu           sync.RWMutex
	revalidateFn func()
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is cancelled, then closes every
// client and returns ctx.Err(). Designed for suture supervision.
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Broadcast messages
// This ensures client state is always consistent before processing messages.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
		}

		// Priority 3: Handle broadcast messages or wait for any event
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients sends a message to all connected clients in a
// deterministic order.
// DETERMINISM: Sorts clients by ID so delivery order is reproducible; Go map
// iteration order is random.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	// Track clients to remove (can't modify map during iteration)
	var toRemove []*Client

	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WebSocketMessagesSent.WithLabelValues(message.Type).Inc()
		default:
			// Channel full or closed, mark for removal
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

// shutdown closes every client. Context cancellation is expected behavior
// during graceful shutdown, so nothing here logs at error level.
func (h *Hub) shutdown(ctx context.Context) {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WebSocketClients.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// BroadcastJSON sends a typed message to all connected clients. Drops the
// message when the broadcast queue is full; push updates are advisory and
// the dashboard re-fetches on reconnect.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// CamerasUpdatedData is the payload of a cameras_updated message.
type CamerasUpdatedData struct {
	Source    string                `json:"source"`
	Endpoint  string                `json:"endpoint"`
	Cameras   []models.CameraRecord `json:"cameras"`
	Timestamp string                `json:"timestamp"`
}

// BroadcastCamerasUpdated notifies all clients of a refreshed camera list.
func (h *Hub) BroadcastCamerasUpdated(source, endpoint string, cameras []models.CameraRecord) {
	h.BroadcastJSON(MessageTypeCamerasUpdated, CamerasUpdatedData{
		Source:    source,
		Endpoint:  endpoint,
		Cameras:   cameras,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SetRevalidateFunc installs the callback run when a client sends a
// revalidate message. The callback is invoked on the client's read goroutine
// and must not block; registry revalidation runs its fetch in the background
// and rate-limits internally.
func (h *Hub) SetRevalidateFunc(fn func()) {
	h.mu.Lock()
	h.revalidateFn = fn
	h.mu.Unlock()
}

// unregister hands a client to the hub loop, or returns immediately if the
// hub has already shut down. Client pumps use this instead of sending on
// Unregister directly so they never block on a stopped hub.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// requestRevalidate runs the installed revalidate callback, if any.
func (h *Hub) requestRevalidate() {
	h.mu.RLock()
	fn := h.revalidateFn
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
