package service

import (
	"context"

	"github.com/ernanint/notas-de-vidro/internal/domain"
	"github.com/ernanint/notas-de-vidro/internal/models"
)

// AuditService provides audit log queries.
type AuditService struct {
	store domain.AuditService
}

// NewAuditService creates an AuditService.
func NewAuditService(s domain.AuditService) *AuditService {
	return &AuditService{store: s}
}

// QueryAudit returns audit entries matching opts.
func (s *AuditService) QueryAudit(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, bool, error) {
	return s.store.QueryAudit(ctx, opts)
}
