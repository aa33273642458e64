package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/dbpool"
)

// validChannel matches safe PostgreSQL LISTEN channel names.
var validChannel = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	// ListenChannel is the channel document writes are announced on.
	ListenChannel     = "doc_changes"
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// Toucher marks live queries on a collection for re-evaluation.
type Toucher interface {
	Touch(collection string)
	TouchAll()
}

// NotifyBridge subscribes to PostgreSQL LISTEN/NOTIFY on the doc_changes
// channel so that writes made by other server instances refresh local
// live queries.
type NotifyBridge struct {
	log     *logrus.Logger
	pool    *dbpool.Pool
	toucher Toucher
}

// NewNotifyBridge creates a NotifyBridge wired to the given pool and toucher.
func NewNotifyBridge(log *logrus.Logger, pool *dbpool.Pool, toucher Toucher) *NotifyBridge {
	return &NotifyBridge{
		log:     log,
		pool:    pool,
		toucher: toucher,
	}
}

// Start verifies the database is reachable and launches the LISTEN loop in
// a background goroutine that reconnects with backoff until ctx is done.
func (b *NotifyBridge) Start(ctx context.Context) error {
	if !validChannel.MatchString(ListenChannel) {
		return fmt.Errorf("notify bridge: invalid channel name %q", ListenChannel)
	}

	if err := b.pool.Ping(ctx); err != nil {
		return fmt.Errorf("notify bridge: database not reachable: %w", err)
	}

	go b.listen(ctx)

	return nil
}

// listen is the main loop that acquires a connection, subscribes to the
// channel, and processes notifications until the context is cancelled.
func (b *NotifyBridge) listen(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		err := b.subscribeAndForward(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		b.log.WithError(err).WithField("retry_in", backoff).
			Warn("notify bridge connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

// subscribeAndForward acquires a connection, issues LISTEN, and blocks on
// notifications until the connection fails or the context is cancelled.
// Every live query is refreshed once LISTEN succeeds, since notifications
// sent while disconnected are lost.
func (b *NotifyBridge) subscribeAndForward(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	// LISTEN takes the channel name inline, not as a parameter.
	sanitizedChannel := pgx.Identifier{ListenChannel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+sanitizedChannel); err != nil {
		return fmt.Errorf("executing LISTEN: %w", err)
	}

	b.log.WithField("channel", ListenChannel).Info("notify bridge listening")
	b.toucher.TouchAll()

	for {
		// Set a 2-minute read deadline so we periodically check ctx cancellation.
		if err := conn.Conn().PgConn().Conn().SetReadDeadline(time.Now().Add(2 * time.Minute)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// On timeout, loop back to check context and retry.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		b.handleNotification(notification)
	}
}

// handleNotification refreshes live queries on the notified collection.
func (b *NotifyBridge) handleNotification(n *pgconn.Notification) {
	var payload struct {
		Collection string `json:"collection"`
		ID         string `json:"id"`
		Op         string `json:"op"`
	}
	if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil || payload.Collection == "" {
		b.log.WithField("payload", n.Payload).Warn("dropping notification without collection")
		return
	}

	b.log.WithFields(logrus.Fields{
		"collection": payload.Collection,
		"id":         payload.ID,
		"op":         payload.Op,
		"pid":        n.PID,
	}).Debug("document change notification")

	b.toucher.Touch(payload.Collection)
}

// nextBackoff doubles the current backoff duration with random jitter (±25%),
// capped at maxBackoff. Jitter prevents thundering herd on reconnect.
func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffMultiplier
	if next > maxBackoff {
		next = maxBackoff
	}

	// Add ±25% jitter.
	jitter := float64(next) * (0.75 + rand.Float64()*0.5) //nolint:gosec // jitter doesn't need crypto rand.

	return time.Duration(jitter)
}
