package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/service"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	h := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	return h
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}

		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("invalid event: %v", err)
		}

		return evt
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	return Event{}
}

func TestHub_NotifyTargetsUser(t *testing.T) {
	h := newTestHub(t)

	alice := NewClient(h, nil, nil, "alice", "")
	bob := NewClient(h, nil, nil, "bob", "")
	h.Register(alice)
	h.Register(bob)
	waitForClients(t, h, 2)

	h.Notify("alice", service.Notice{Level: service.NoticeSuccess, Message: "Note created"})

	evt := receive(t, alice)
	if evt.Type != EventNotice || evt.ID != 1 {
		t.Fatalf("event = %+v", evt)
	}

	var n service.Notice
	if err := json.Unmarshal(evt.Data, &n); err != nil || n.Message != "Note created" {
		t.Errorf("notice = %+v, err = %v", n, err)
	}

	select {
	case msg := <-bob.send:
		t.Errorf("bob received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := newTestHub(t)

	c := NewClient(h, nil, nil, "alice", "")
	h.Register(c)
	waitForClients(t, h, 1)

	h.Unregister(c)
	waitForClients(t, h, 0)

	if c.enqueue([]byte("x")) {
		t.Error("enqueue succeeded after unregister")
	}
}

func TestHub_PerUserLimit(t *testing.T) {
	h := newTestHub(t)

	for range maxClientsPerUser + 1 {
		h.Register(NewClient(h, nil, nil, "alice", ""))
	}

	waitForClients(t, h, maxClientsPerUser)
}

func TestHub_ShutdownSendsFrame(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	h := NewHub(log)
	go h.Run(context.Background())

	c := NewClient(h, nil, nil, "alice", "")
	h.Register(c)
	waitForClients(t, h, 1)

	// Drain concurrently so the hub sees an empty buffer.
	got := make(chan []byte, 1)
	go func() {
		msg := <-c.send
		got <- msg
	}()

	h.Shutdown()

	select {
	case msg := <-got:
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil || evt.Type != EventShutdown {
			t.Errorf("shutdown frame = %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no shutdown frame")
	}
}

func TestEventSequence_PerUser(t *testing.T) {
	s := NewEventSequence()

	if s.Next("a") != 1 || s.Next("a") != 2 || s.Next("b") != 1 {
		t.Error("sequence is not monotonic per user")
	}
}
