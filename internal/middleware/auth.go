package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// authTimingFloor is the minimum response time for a rejected request so
// valid and invalid tokens cannot be told apart by latency.
const authTimingFloor = 50 * time.Millisecond

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

// UserLookup resolves a bearer token to a user id.
type UserLookup interface {
	UserByToken(ctx context.Context, token string) (string, error)
}

func truncateToken(token string) string {
	if len(token) > 4 {
		return token[:4] + "..."
	}
	return token
}

func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}

// AuthMiddleware authenticates requests via Bearer token and stores the user
// id under UserIDKey. Browsers cannot set headers on a WebSocket upgrade, so
// a "token" query parameter is accepted as a fallback.
func AuthMiddleware(lookup UserLookup, log *logrus.Logger, guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		token := ExtractBearerToken(c)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			respondError(c, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization header")
			return
		}

		user, err := lookup.UserByToken(c.Request.Context(), token)
		if err != nil {
			logAuthFailure(log, c, token)

			if guard != nil {
				guard.RecordFailure(token)
			}

			respondError(c, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}

		if guard != nil {
			guard.ResetKey(token)
		}

		c.Set(UserIDKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user id, or "" if none.
func CurrentUser(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// ExtractBearerToken extracts the token from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func logAuthFailure(log *logrus.Logger, c *gin.Context, token string) {
	log.WithFields(logrus.Fields{
		"client_ip":    c.ClientIP(),
		"method":       c.Request.Method,
		"path":         c.Request.URL.Path,
		"user_agent":   c.Request.UserAgent(),
		"request_id":   c.GetString(RequestIDKey),
		"token_prefix": truncateToken(token),
	}).Warn("authentication failed: unknown token")
}
