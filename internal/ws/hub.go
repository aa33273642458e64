// Package ws pushes live entity snapshots and notices to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/metrics"
	"github.com/ernanint/notas-de-vidro/internal/service"
)

// Hub channel buffer sizes.
const (
	broadcastBuffer = 256
	registerBuffer  = 64
)

// Connection limits.
const (
	maxClients        = 1000
	maxClientsPerUser = 20
)

type userBroadcast struct {
	user string
	msg  []byte
}

// Hub tracks connected clients by user and fans out per-user messages.
// All client map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	userCount  map[string]int
	register   chan *Client
	unregister chan *Client
	broadcast  chan userBroadcast
	shutdown   chan struct{}
	done       chan struct{}
	count      atomic.Int64
	log        *logrus.Logger
	seq        *EventSequence
}

// NewHub creates a new Hub instance.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		userCount:  make(map[string]int),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan userBroadcast, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
		seq:        NewEventSequence(),
	}
}

// drainTimeout is how long the hub waits for clients to flush after shutdown.
const drainTimeout = 3 * time.Second

// Run starts the hub event loop. It exits when Shutdown is called or ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()
			return
		case <-h.shutdown:
			h.drainClients()
			return

		case client := <-h.register:
			if len(h.clients) >= maxClients {
				h.log.Warn("global connection limit reached, dropping client")
				client.closeSend()
				continue
			}

			if h.userCount[client.User] >= maxClientsPerUser {
				h.log.WithField("user", client.User).Warn("per-user connection limit reached, dropping client")
				client.closeSend()
				continue
			}

			h.clients[client] = true
			h.userCount[client.User]++
			h.updateCount()
			h.log.WithFields(logrus.Fields{"user": client.User, "total": len(h.clients)}).Info("client registered")

		case client := <-h.unregister:
			h.remove(client)
			h.log.WithField("total", len(h.clients)).Info("client unregistered")

		case b := <-h.broadcast:
			for client := range h.clients {
				if client.User != b.user {
					continue
				}

				if !client.enqueue(b.msg) {
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()

		h.userCount[client.User]--
		if h.userCount[client.User] <= 0 {
			delete(h.userCount, client.User)
		}
	}

	h.updateCount()
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// maxBroadcastPayload is the largest notice payload the hub will fan out.
const maxBroadcastPayload = 4096

// SendToUser queues msg for every connection of user.
func (h *Hub) SendToUser(user string, msg []byte) {
	if len(msg) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"user":         user,
			"payload_size": len(msg),
			"max_size":     maxBroadcastPayload,
		}).Warn("dropping oversized broadcast payload")
		return
	}

	select {
	case h.broadcast <- userBroadcast{user: user, msg: msg}:
	default:
		h.log.Warn("broadcast channel full, dropping message")
	}
}

// Notify delivers a notice to every connection of user.
func (h *Hub) Notify(user string, n service.Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal notice")
		return
	}

	msg, err := h.event(EventNotice, user, data)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal event")
		return
	}

	h.SendToUser(user, msg)
}

// event wraps data in a sequenced Event for user.
func (h *Hub) event(eventType, user string, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Event{
		Type: eventType,
		ID:   h.seq.Next(user),
		Data: data,
		Time: time.Now().UTC(),
	})
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("register channel full, dropping client")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Shutdown sends a shutdown frame to every client, waits for their send
// buffers to flush or drainTimeout to pass, then closes them.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("draining WebSocket clients")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for client := range h.clients {
		client.enqueue(shutdownMsg)
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		allDrained := true

		for client := range h.clients {
			if client.pending() > 0 {
				allDrained = false
				break
			}
		}

		if allDrained {
			break
		}

		select {
		case <-deadline:
			h.log.Warn("WebSocket drain timeout, closing remaining clients")
			break wait
		case <-ticker.C:
		}
	}

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}

	h.userCount = make(map[string]int)
	h.updateCount()
}
