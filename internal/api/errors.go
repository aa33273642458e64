package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/httputil"
	"github.com/ernanint/notas-de-vidro/internal/metrics"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/service"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeInternalError      = "internal_error"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodePermissionDenied   = "permission_denied"
	ErrCodeAlreadyShared      = "already_shared"
	ErrCodeInvalidTarget      = "invalid_target"
	ErrCodeBackendUnavailable = "backend_unavailable"
	ErrCodeValidationError    = "validation_error"
	ErrCodeUnsupported        = "unsupported"
)

func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

type errorMapping struct {
	status  int
	code    string
	message string
}

var categoryResponses = map[models.Category]errorMapping{
	models.CategoryUnauthenticated:    {http.StatusUnauthorized, ErrCodeUnauthenticated, "authentication required"},
	models.CategoryNotFound:           {http.StatusNotFound, ErrCodeNotFound, "not found"},
	models.CategoryPermissionDenied:   {http.StatusForbidden, ErrCodePermissionDenied, "permission denied"},
	models.CategoryAlreadyShared:      {http.StatusConflict, ErrCodeAlreadyShared, "already shared with that user"},
	models.CategoryInvalidTarget:      {http.StatusBadRequest, ErrCodeInvalidTarget, "cannot share with that user"},
	models.CategoryBackendUnavailable: {http.StatusServiceUnavailable, ErrCodeBackendUnavailable, "storage unavailable, try again"},
	models.CategoryValidation:         {http.StatusUnprocessableEntity, ErrCodeValidationError, ""},
	models.CategoryUnsupported:        {http.StatusUnprocessableEntity, ErrCodeUnsupported, ""},
}

// respondServiceError maps err onto a status code and envelope. Validation
// and unsupported errors carry their own message; infrastructure details are
// logged but never returned.
func respondServiceError(c *gin.Context, log *logrus.Logger, op string, err error) {
	if errors.Is(err, service.ErrUnknownKind) {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "unknown entity kind")
		return
	}

	cat := models.CategoryOf(err)

	m, ok := categoryResponses[cat]
	if !ok {
		log.WithError(err).WithField("request_id", c.GetString("request_id")).Error(op)
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	if cat == models.CategoryBackendUnavailable {
		log.WithError(err).Warn(op)
	}

	msg := m.message
	if msg == "" {
		msg = err.Error()
	}

	metrics.ErrorsTotal.WithLabelValues(m.code).Inc()
	httputil.RespondErrorBody(c, m.status, httputil.ErrorBody{
		Code:      m.code,
		Message:   msg,
		Retryable: cat.Retryable(),
	})
}
