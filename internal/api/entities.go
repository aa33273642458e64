package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// EntityHandler serves CRUD and sharing endpoints for notes, tasks and
// checklist items. Each kind has its own route group; withKind records which.
type EntityHandler struct {
	svc EntityService
	log *logrus.Logger
}

// NewEntityHandler creates an EntityHandler with the given service and logger.
func NewEntityHandler(svc EntityService, log *logrus.Logger) *EntityHandler {
	return &EntityHandler{svc: svc, log: log}
}

const kindKey = "entity_kind"

// withKind tags every request in a route group with kind.
func withKind(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(kindKey, kind)
		c.Next()
	}
}

type shareRequest struct {
	User string `json:"user"`
}

// target resolves the kind, the id (when the route has one) and the caller.
// It writes the error response and returns ok=false on failure.
func (h *EntityHandler) target(c *gin.Context, withID bool) (kind models.Kind, id, user string, ok bool) {
	v, _ := c.Get(kindKey)
	if kind, _ = v.(models.Kind); !kind.Valid() {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "unknown entity kind")
		return "", "", "", false
	}

	if withID {
		id = c.Param("id")
		if err := validatePathID(id); err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return "", "", "", false
		}
	}

	user = currentUser(c)
	if user == "" {
		return "", "", "", false
	}

	return kind, id, user, true
}

func (h *EntityHandler) audit(action string, kind models.Kind, id, user string) {
	h.log.WithFields(logrus.Fields{
		"action": kind.Label() + "." + action, "user": user, "entity_id": id,
	}).Info("audit")
}

// List handles GET /api/v1/{kind}.
func (h *EntityHandler) List(c *gin.Context) {
	kind, _, user, ok := h.target(c, false)
	if !ok {
		return
	}

	list, err := h.svc.List(c.Request.Context(), kind, user)
	if err != nil {
		respondServiceError(c, h.log, "listing "+kind.Plural(), err)
		return
	}

	h.log.WithFields(logrus.Fields{"action": kind.Label() + ".list", "user": user, "count": len(list)}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"items": list, "count": len(list)})
}

// Get handles GET /api/v1/{kind}/:id.
func (h *EntityHandler) Get(c *gin.Context) {
	kind, id, user, ok := h.target(c, true)
	if !ok {
		return
	}

	e, err := h.svc.Get(c.Request.Context(), kind, id, user)
	if err != nil {
		respondServiceError(c, h.log, "getting "+kind.Label(), err)
		return
	}

	c.JSON(http.StatusOK, e)
}

// Create handles POST /api/v1/{kind}.
func (h *EntityHandler) Create(c *gin.Context) {
	kind, _, user, ok := h.target(c, false)
	if !ok {
		return
	}

	var req models.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	e, err := h.svc.Create(c.Request.Context(), kind, user, req)
	if err != nil {
		respondServiceError(c, h.log, "creating "+kind.Label(), err)
		return
	}

	h.audit("create", kind, e.ID, user)

	c.JSON(http.StatusCreated, e)
}

// Update handles PUT /api/v1/{kind}/:id.
func (h *EntityHandler) Update(c *gin.Context) {
	kind, id, user, ok := h.target(c, true)
	if !ok {
		return
	}

	var req models.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	e, err := h.svc.Update(c.Request.Context(), kind, id, user, req)
	if err != nil {
		respondServiceError(c, h.log, "updating "+kind.Label(), err)
		return
	}

	h.audit("update", kind, id, user)

	c.JSON(http.StatusOK, e)
}

// Toggle handles POST /api/v1/{kind}/:id/toggle.
func (h *EntityHandler) Toggle(c *gin.Context) {
	kind, id, user, ok := h.target(c, true)
	if !ok {
		return
	}

	e, err := h.svc.Toggle(c.Request.Context(), kind, id, user)
	if err != nil {
		respondServiceError(c, h.log, "toggling "+kind.Label(), err)
		return
	}

	h.audit("toggle", kind, id, user)

	c.JSON(http.StatusOK, e)
}

// Share handles POST /api/v1/{kind}/:id/share.
func (h *EntityHandler) Share(c *gin.Context) {
	kind, id, user, ok := h.target(c, true)
	if !ok {
		return
	}

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	e, err := h.svc.Share(c.Request.Context(), kind, id, user, req.User)
	if err != nil {
		respondServiceError(c, h.log, "sharing "+kind.Label(), err)
		return
	}

	h.audit("share", kind, id, user)

	c.JSON(http.StatusOK, e)
}

// Unshare handles DELETE /api/v1/{kind}/:id/share/:user.
func (h *EntityHandler) Unshare(c *gin.Context) {
	kind, id, user, ok := h.target(c, true)
	if !ok {
		return
	}

	e, err := h.svc.Unshare(c.Request.Context(), kind, id, user, c.Param("user"))
	if err != nil {
		respondServiceError(c, h.log, "unsharing "+kind.Label(), err)
		return
	}

	h.audit("unshare", kind, id, user)

	c.JSON(http.StatusOK, e)
}

// Delete handles DELETE /api/v1/{kind}/:id.
func (h *EntityHandler) Delete(c *gin.Context) {
	kind, id, user, ok := h.target(c, true)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), kind, id, user); err != nil {
		respondServiceError(c, h.log, "deleting "+kind.Label(), err)
		return
	}

	h.audit("delete", kind, id, user)

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// History handles GET /api/v1/{kind}/:id/history.
func (h *EntityHandler) History(c *gin.Context) {
	kind, id, user, ok := h.target(c, true)
	if !ok {
		return
	}

	history, err := h.svc.History(c.Request.Context(), kind, id, user)
	if err != nil {
		respondServiceError(c, h.log, "reading history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}
