package api

import (
	"context"

	"github.com/ernanint/notas-de-vidro/internal/domain"
)

// EntityService is an alias for the canonical domain interface.
type EntityService = domain.EntityService

// AuditService is an alias for the canonical domain interface.
type AuditService = domain.AuditService

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
