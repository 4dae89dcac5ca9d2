// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package websocket streams alerts to connected browser clients. The hub
// subscribes to the alert bus and fans each alert out; clients that stop
// reading are disconnected rather than allowed to apply backpressure.
package websocket

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
)

// Hub coordinates the websocket clients and the alert stream.
type Hub struct {
	bus *alert.Bus

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub over the given alert bus.
func NewHub(bus *alert.Bus) *Hub {
	return &Hub{
		bus:        bus,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*Client]struct{}),
	}
}

// String names the hub for supervision.
func (h *Hub) String() string { return "websocket-hub" }

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve runs the hub loop until the context ends. It subscribes to the
// alert bus for the lifetime of the loop; registration and unregistration
// are prioritized over broadcasts so connection churn stays responsive.
func (h *Hub) Serve(ctx context.Context) error {
	subID, alerts := h.bus.Subscribe()
	defer h.bus.Unsubscribe(subID)

	defer h.closeAll()

	for {
		// Drain registration first so a flood of alerts cannot starve
		// connection handling.
		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case a, ok := <-alerts:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(a)
			if err != nil {
				logging.Error().Err(err).Msg("failed to marshal alert for stream")
				continue
			}
			h.fanOut(payload)
		case payload := <-h.broadcast:
			h.fanOut(payload)
		}
	}
}

// Broadcast queues an arbitrary payload (status updates, mode changes)
// for all clients. Non-blocking; drops when the hub is saturated.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		logging.Warn().Msg("hub broadcast queue full, dropping payload")
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
	logging.Debug().Int("clients", n).Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
	logging.Debug().Int("clients", n).Msg("websocket client disconnected")
}

// fanOut sends a payload to every client, dropping clients whose send
// buffer is full.
func (h *Hub) fanOut(payload []byte) {
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
			logging.Warn().Msg("websocket client too slow, disconnecting")
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.WebsocketClients.Set(0)
}
