// Package api provides the HTTP and WebSocket surface of the notes server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConnCounter reports the number of live WebSocket connections.
type ConnCounter interface {
	ClientCount() int
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	store         Pinger
	conns         ConnCounter
	log           *logrus.Logger
	version       string
	backend       string
	schemaVersion int
	startTime     time.Time
}

// NewHealthHandler creates a HealthHandler. store and conns may be nil.
func NewHealthHandler(store Pinger, conns ConnCounter, log *logrus.Logger, version, backend string, schemaVersion int) *HealthHandler {
	return &HealthHandler{
		store:         store,
		conns:         conns,
		log:           log,
		version:       version,
		backend:       backend,
		schemaVersion: schemaVersion,
		startTime:     time.Now(),
	}
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Storage       string  `json:"storage"`
	Database      string  `json:"database"`
	SchemaVersion int     `json:"schema_version"`
	LiveClients   int     `json:"live_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health. It always answers 200; the database
// field reports reachability.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Storage:       h.backend,
		Database:      "connected",
		SchemaVersion: h.schemaVersion,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			resp.Database = "disconnected"
		}
	} else {
		resp.Database = "not_configured"
	}

	if h.conns != nil {
		resp.LiveClients = h.conns.ClientCount()
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{"storage": "ok"}
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if h.store == nil {
		checks["storage"] = "not_configured"
	} else if err := h.store.Ping(ctx); err != nil {
		h.log.WithError(err).Error("readiness: storage ping failed")
		checks["storage"] = "error"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readinessResponse{
		Status: status,
		Checks: checks,
	})
}
