package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	bruteForceMaxAttempts = 5
	bruteForceWindow      = 15 * time.Minute
	bruteForceLockout     = 5 * time.Minute
	bruteForceCleanup     = 60 * time.Second
	bruteForceMaxRecords  = 10000
)

type failureRecord struct {
	attempts  int
	firstFail time.Time
	lockedAt  time.Time
}

// BruteForceGuard locks out a token after repeated failed authentications.
// Tokens are tracked by hash only.
type BruteForceGuard struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	log     *logrus.Logger
	now     func() time.Time
}

// NewBruteForceGuard creates a guard whose cleanup goroutine stops with ctx.
func NewBruteForceGuard(ctx context.Context, log *logrus.Logger) *BruteForceGuard {
	g := &BruteForceGuard{
		records: make(map[string]*failureRecord),
		log:     log,
		now:     time.Now,
	}
	go g.cleanupLoop(ctx)
	return g
}

func tokenHash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// IsBlocked reports whether token is currently locked out.
func (g *BruteForceGuard) IsBlocked(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[tokenHash(token)]
	return ok && !rec.lockedAt.IsZero() && g.now().Sub(rec.lockedAt) < bruteForceLockout
}

// RecordFailure counts a failed authentication for token.
func (g *BruteForceGuard) RecordFailure(token string) {
	th := tokenHash(token)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[th]
	if !ok || now.Sub(rec.firstFail) > bruteForceWindow {
		if !ok && len(g.records) >= bruteForceMaxRecords {
			g.evictOldest()
		}

		g.records[th] = &failureRecord{attempts: 1, firstFail: now}
		return
	}

	rec.attempts++
	if rec.attempts >= bruteForceMaxAttempts && rec.lockedAt.IsZero() {
		rec.lockedAt = now
		g.log.WithField("token_hash", th[:16]+"...").Warn("token locked out after repeated auth failures")
	}
}

// ResetKey clears failure tracking for token after a successful login.
func (g *BruteForceGuard) ResetKey(token string) {
	g.mu.Lock()
	delete(g.records, tokenHash(token))
	g.mu.Unlock()
}

func (g *BruteForceGuard) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(bruteForceCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *BruteForceGuard) sweep() {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, rec := range g.records {
		expiredLock := !rec.lockedAt.IsZero() && now.Sub(rec.lockedAt) >= bruteForceLockout
		staleWindow := rec.lockedAt.IsZero() && now.Sub(rec.firstFail) >= bruteForceWindow

		if expiredLock || staleWindow {
			delete(g.records, k)
		}
	}
}

// evictOldest drops the record with the earliest first failure. Caller holds g.mu.
func (g *BruteForceGuard) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
	)

	for k, rec := range g.records {
		if oldestKey == "" || rec.firstFail.Before(oldestTime) {
			oldestKey, oldestTime = k, rec.firstFail
		}
	}

	delete(g.records, oldestKey)
}

// BruteForceMiddleware rejects requests carrying a locked-out token.
func BruteForceMiddleware(guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearerToken(c)
		if token == "" {
			token = c.Query("token")
		}

		if token != "" && guard.IsBlocked(token) {
			respondError(c, http.StatusTooManyRequests, "rate_limited", "too many failed authentication attempts")
			return
		}

		c.Next()
	}
}
