package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// Event types sent to clients.
const (
	EventSnapshot = "snapshot"
	EventNotice   = "notice"
	EventShutdown = "shutdown"
)

// MsgResync is the client message asking for every snapshot to be resent.
const MsgResync = "resync"

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
	Time time.Time       `json:"time"`
}

// SnapshotData carries the full accessible list for one kind. Ready is false
// until both the owned and shared queries have reported.
type SnapshotData struct {
	Kind  models.Kind     `json:"kind"`
	Ready bool            `json:"ready"`
	Items []models.Entity `json:"items"`
}

// ClientMsg is a message sent by the client.
type ClientMsg struct {
	Type string `json:"type"`
}

// EventSequence tracks monotonic event IDs per user.
type EventSequence struct {
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

// NewEventSequence creates a new EventSequence.
func NewEventSequence() *EventSequence {
	return &EventSequence{
		counters: make(map[string]*atomic.Uint64),
	}
}

// Next returns the next sequence number for user.
func (es *EventSequence) Next(user string) uint64 {
	es.mu.Lock()
	counter, ok := es.counters[user]
	if !ok {
		counter = &atomic.Uint64{}
		es.counters[user] = counter
	}
	es.mu.Unlock()

	return counter.Add(1)
}
