// Package domain defines the service interfaces shared by the HTTP API, the
// live connection hub and tests. Consumers depend on these rather than
// re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// EntityService defines every operation on shared entities. currentUser is
// the authenticated caller; permission checks happen below this interface.
type EntityService interface {
	List(ctx context.Context, kind models.Kind, currentUser string) ([]models.Entity, error)
	Get(ctx context.Context, kind models.Kind, id, currentUser string) (*models.Entity, error)
	Create(ctx context.Context, kind models.Kind, currentUser string, req models.CreateRequest) (*models.Entity, error)
	Update(ctx context.Context, kind models.Kind, id, currentUser string, req models.UpdateRequest) (*models.Entity, error)
	Toggle(ctx context.Context, kind models.Kind, id, currentUser string) (*models.Entity, error)
	Share(ctx context.Context, kind models.Kind, id, currentUser, target string) (*models.Entity, error)
	Unshare(ctx context.Context, kind models.Kind, id, currentUser, target string) (*models.Entity, error)
	Delete(ctx context.Context, kind models.Kind, id, currentUser string) error
	History(ctx context.Context, kind models.Kind, id, currentUser string) ([]models.ChangeRecord, error)
}

// AuditService defines audit log queries.
type AuditService interface {
	QueryAudit(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, bool, error)
}

// Auditor records audit entries.
type Auditor interface {
	RecordAudit(ctx context.Context, entry models.AuditEntry) error
}
