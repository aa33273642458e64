package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/metrics"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/session"
)

const (
	writeTimeout         = 10 * time.Second
	wsReadLimit          = 4096
	clientSendBuffer     = 256
	maxConnLifetime      = 4 * time.Hour
	tokenRefreshInterval = 15 * time.Minute
	tokenRefreshTimeout  = 10 * time.Second
	pingInterval         = 30 * time.Second
	pingTimeout          = 10 * time.Second
	maxMissedPongs       = int32(2)
)

// UserValidator re-checks that a token still belongs to the connected user.
type UserValidator interface {
	UserByToken(ctx context.Context, token string) (string, error)
}

// Client wraps a single WebSocket connection managed by the Hub.
//
// Snapshots are not queued. A view change only marks its kind dirty and the
// write pump renders the latest list when it next runs, so a burst of
// changes collapses into one frame.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	log         *logrus.Logger
	User        string
	token       string
	validator   UserValidator
	connectedAt time.Time

	mu     sync.Mutex
	send   chan []byte
	closed bool

	sess    *session.Session
	cancels []func()
	dirtyMu sync.Mutex
	dirty   map[models.Kind]bool
	nudge   chan struct{}
}

// NewClient creates a new Client for the given WebSocket connection.
func NewClient(hub *Hub, conn *websocket.Conn, validator UserValidator, user, token string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		log:         hub.log,
		User:        user,
		token:       token,
		validator:   validator,
		connectedAt: time.Now(),
		send:        make(chan []byte, clientSendBuffer),
		dirty:       make(map[models.Kind]bool),
		nudge:       make(chan struct{}, 1),
	}
}

// enqueue queues msg without blocking. It reports false if the client is
// closed or its buffer is full.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) pending() int {
	return len(c.send)
}

// Watch streams the session's views to the client. Every kind is sent once
// immediately and again after each change.
func (c *Client) Watch(sess *session.Session) {
	c.sess = sess

	for _, kind := range sess.Kinds() {
		cancel := sess.View(kind).OnChange(func([]models.Entity) {
			c.markDirty(kind)
		})
		c.cancels = append(c.cancels, cancel)
	}

	c.markAllDirty()
}

func (c *Client) unwatch() {
	for _, cancel := range c.cancels {
		cancel()
	}

	c.cancels = nil
}

func (c *Client) markDirty(kind models.Kind) {
	c.dirtyMu.Lock()
	c.dirty[kind] = true
	c.dirtyMu.Unlock()

	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

func (c *Client) markAllDirty() {
	if c.sess == nil {
		return
	}

	for _, kind := range c.sess.Kinds() {
		c.markDirty(kind)
	}
}

func (c *Client) takeDirty() []models.Kind {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()

	var out []models.Kind

	for _, k := range models.Kinds {
		if c.dirty[k] {
			out = append(out, k)
			delete(c.dirty, k)
		}
	}

	return out
}

// snapshot renders the current state of kind as an event frame.
func (c *Client) snapshot(kind models.Kind) ([]byte, error) {
	data, err := json.Marshal(SnapshotData{
		Kind:  kind,
		Ready: c.sess.Ready(kind),
		Items: c.sess.View(kind).Entities(),
	})
	if err != nil {
		return nil, err
	}

	return c.hub.event(EventSnapshot, c.User, data)
}

// ReadPump reads client messages until the connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.unwatch()
		c.hub.Unregister(c)
		c.conn.CloseNow() //nolint:errcheck // best-effort close on teardown
	}()

	c.conn.SetReadLimit(wsReadLimit)

	for {
		_, msgBytes, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.WithField("status", websocket.CloseStatus(err)).Debug("client disconnected")
			}

			return
		}

		c.handleMessage(msgBytes)
	}
}

func (c *Client) handleMessage(msgBytes []byte) {
	var msg ClientMsg
	if err := json.Unmarshal(msgBytes, &msg); err != nil {
		return
	}

	if msg.Type == MsgResync {
		c.markAllDirty()
	}
}

func (c *Client) sendPing(ctx context.Context, missedPongs *atomic.Int32) bool {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := c.conn.Ping(pingCtx)
	cancel()

	if err != nil {
		if missedPongs.Add(1) >= maxMissedPongs {
			c.log.Debug("closing: 2 consecutive missed pongs")
			return true
		}

		return false
	}

	missedPongs.Store(0)

	return false
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return c.conn.Write(writeCtx, websocket.MessageText, msg)
}

func (c *Client) flushSnapshots(ctx context.Context) error {
	for _, kind := range c.takeDirty() {
		msg, err := c.snapshot(kind)
		if err != nil {
			c.log.WithError(err).WithField("kind", kind).Error("failed to render snapshot")
			continue
		}

		if err := c.write(ctx, msg); err != nil {
			return err
		}

		metrics.SnapshotsPushed.WithLabelValues(string(kind)).Inc()
	}

	return nil
}

// WritePump writes snapshots and queued messages to the connection. It
// enforces a maximum connection lifetime and periodically re-validates the
// token.
func (c *Client) WritePump(ctx context.Context) {
	defer c.conn.CloseNow() //nolint:errcheck // best-effort close on teardown

	lifetimeTimer := time.NewTimer(time.Until(c.connectedAt.Add(maxConnLifetime)))
	defer lifetimeTimer.Stop()

	refreshTicker := time.NewTicker(tokenRefreshInterval)
	defer refreshTicker.Stop()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	var missedPongs atomic.Int32

	for {
		select {
		case <-pingTicker.C:
			if c.sendPing(ctx, &missedPongs) {
				return
			}
		case <-c.nudge:
			if c.sess == nil {
				continue
			}

			if err := c.flushSnapshots(ctx); err != nil {
				c.log.WithError(err).Debug("snapshot write failed")
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			if err := c.write(ctx, msg); err != nil {
				c.log.WithError(err).Debug("write failed")
				return
			}
		case <-refreshTicker.C:
			if !c.refreshToken(ctx) {
				return
			}
		case <-lifetimeTimer.C:
			c.log.Info("closing WebSocket: max connection lifetime exceeded")
			c.conn.Close(websocket.StatusNormalClosure, "max connection lifetime exceeded") //nolint:errcheck // best-effort

			return
		}
	}
}

// refreshToken reports whether the token still maps to the connected user.
func (c *Client) refreshToken(ctx context.Context) bool {
	if c.validator == nil {
		return true
	}

	refreshCtx, cancel := context.WithTimeout(ctx, tokenRefreshTimeout)
	user, err := c.validator.UserByToken(refreshCtx, c.token)
	cancel()

	if err != nil || user != c.User {
		c.log.WithField("user", c.User).Info("closing WebSocket: token no longer valid")
		c.conn.Close(websocket.StatusPolicyViolation, "authentication expired") //nolint:errcheck // best-effort

		return false
	}

	return true
}
