package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/livesync"
	"github.com/ernanint/notas-de-vidro/internal/middleware"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/session"
	"github.com/ernanint/notas-de-vidro/internal/ws"
)

// currentUser returns the authenticated user id, or writes a 401 and returns "".
func currentUser(c *gin.Context) string {
	user := middleware.CurrentUser(c)
	if user == "" {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthenticated, "authentication required")
	}

	return user
}

// parseKinds reads the kind query parameters of a live request. No kind means
// all of them.
func parseKinds(values []string) ([]models.Kind, error) {
	if len(values) == 0 {
		return models.Kinds, nil
	}

	seen := make(map[models.Kind]bool, len(values))
	out := make([]models.Kind, 0, len(values))

	for _, v := range values {
		k, err := models.ParseKind(v)
		if err != nil {
			return nil, err
		}

		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	return out, nil
}

// liveHandler upgrades to a WebSocket, opens a session over the requested
// kinds and streams its views until either side disconnects.
func liveHandler(
	appCtx context.Context,
	log *logrus.Logger,
	hub *ws.Hub,
	sources map[models.Kind]livesync.Source,
	corsOrigins []string,
	validator ws.UserValidator,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == "" {
			return
		}

		kinds, err := parseKinds(c.QueryArray("kind"))
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}

		srcs := make([]livesync.Source, 0, len(kinds))
		for _, k := range kinds {
			if src, ok := sources[k]; ok {
				srcs = append(srcs, src)
			}
		}

		sess, err := session.Open(user, srcs, log)
		if err != nil {
			respondServiceError(c, log, "opening live session", err)
			return
		}
		defer sess.Close()

		token := middleware.ExtractBearerToken(c)
		if token == "" {
			token = c.Query("token")
		}

		// CORS origins double as WebSocket origin patterns.
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns:       corsOrigins,
			CompressionMode:      websocket.CompressionContextTakeover,
			CompressionThreshold: 128,
		})
		if err != nil {
			log.WithError(err).Error("websocket accept failed")
			return
		}

		client := ws.NewClient(hub, conn, validator, user, token)
		client.Watch(sess)
		hub.Register(client)

		wsCtx, wsCancel := context.WithCancel(appCtx)
		go func() {
			select {
			case <-c.Request.Context().Done():
				wsCancel()
			case <-wsCtx.Done():
			}
		}()

		go client.WritePump(wsCtx)
		client.ReadPump(wsCtx)
		wsCancel()
	}
}

func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if rid, exists := c.Get(middleware.RequestIDKey); exists {
			fields["request_id"] = rid
		}
		if user := middleware.CurrentUser(c); user != "" {
			fields["user"] = user
		}
		log.WithFields(fields).Info("request")
	}
}

// validatePathID checks that a path parameter ID is non-empty and within length limits.
func validatePathID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("id exceeds maximum length of 255")
	}
	return nil
}
