package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// AuditHandler serves the caller's audit log.
type AuditHandler struct {
	svc AuditService
	log *logrus.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(svc AuditService, log *logrus.Logger) *AuditHandler {
	return &AuditHandler{svc: svc, log: log}
}

// Query handles GET /api/v1/audit. Results are limited to entries the caller
// made, optionally narrowed to one entity.
func (h *AuditHandler) Query(c *gin.Context) {
	user := currentUser(c)
	if user == "" {
		return
	}

	opts := models.AuditQueryOpts{
		EntityID: c.Query("entity_id"),
		Actor:    user,
		Action:   c.Query("action"),
		Limit:    parseLimit(c.Query("limit"), 50),
	}

	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid since format, use RFC3339")
			return
		}
		opts.Since = &t
	}

	entries, hasMore, err := h.svc.QueryAudit(c.Request.Context(), opts)
	if err != nil {
		respondServiceError(c, h.log, "querying audit log", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     entries,
		"has_more": hasMore,
	})
}

// maxListLimit caps the number of items per page.
const maxListLimit = 1000

func parseLimit(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}

	return min(v, maxListLimit)
}
