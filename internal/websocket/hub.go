// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package websocket pushes session status snapshots to connected editor
// clients. Each connection subscribes to exactly one session token; polling
// the status endpoint remains the fallback transport.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
	"github.com/waveframe-studio/waveframe/internal/session"
)

// Message types for WebSocket communication
const (
	MessageTypeStatus = "status"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type statusUpdate struct {
	token    string
	snapshot session.StatusSnapshot
}

// Hub maintains per-session subscriber sets and fans status snapshots out
// to them. It implements the coordinator's StatusNotifier.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	updates    chan statusUpdate
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		updates:    make(chan statusUpdate, 256),
	}
}

// NotifyStatus queues a snapshot push for the session's subscribers.
// Never blocks the coordinator: when the queue is full the update is
// dropped and clients catch up from the next one or from polling.
func (h *Hub) NotifyStatus(token string, status session.StatusSnapshot) {
	select {
	case h.updates <- statusUpdate{token: token, snapshot: status}:
	default:
		logging.Warn().Str("session", token).Msg("Status push queue full, dropping update")
	}
}

// RunWithContext runs the hub loop until the context is canceled. Lifecycle
// events take priority over pushes so the subscriber set is consistent
// before any fan-out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Str("component", "websocket-hub").Msg("Status push hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Str("component", "websocket-hub").Msg("Status push hub stopped")
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case update := <-h.updates:
			h.push(update)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	subs, ok := h.sessions[client.token]
	if !ok {
		subs = make(map[*Client]bool)
		h.sessions[client.token] = subs
	}
	subs[client] = true
	total := h.clientCountLocked()
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(total))
	logging.Debug().Str("session", client.token).Int("total_clients", total).Msg("Status subscriber connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if subs, ok := h.sessions[client.token]; ok {
		if _, present := subs[client]; present {
			delete(subs, client)
			close(client.send)
		}
		if len(subs) == 0 {
			delete(h.sessions, client.token)
		}
	}
	total := h.clientCountLocked()
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(total))
	logging.Debug().Str("session", client.token).Int("total_clients", total).Msg("Status subscriber disconnected")
}

// push fans one snapshot out to the session's subscribers in client-ID
// order. Slow clients with a full send buffer are dropped.
func (h *Hub) push(update statusUpdate) {
	msg := Message{Type: MessageTypeStatus, Data: update.snapshot}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.sessions[update.token]
	if len(subs) == 0 {
		return
	}

	clients := make([]*Client, 0, len(subs))
	for client := range subs {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- msg:
			metrics.WebSocketPushes.Inc()
		default:
			close(client.send)
			delete(subs, client)
		}
	}
	if len(subs) == 0 {
		delete(h.sessions, update.token)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for token, subs := range h.sessions {
		clients := make([]*Client, 0, len(subs))
		for client := range subs {
			clients = append(clients, client)
		}
		sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
		for _, client := range clients {
			close(client.send)
		}
		delete(h.sessions, token)
	}
	metrics.WebSocketConnections.Set(0)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientCountLocked()
}

// SessionSubscribers returns the subscriber count for one session.
func (h *Hub) SessionSubscribers(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[token])
}

func (h *Hub) clientCountLocked() int {
	total := 0
	for _, subs := range h.sessions {
		total += len(subs)
	}
	return total
}
