package store

import (
	"fmt"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// Stores groups the entity stores for every kind and the audit store.
type Stores struct {
	Notes     *EntityStore
	Tasks     *EntityStore
	Checklist *EntityStore
	Audit     *AuditStore
}

// NewStores builds all stores on one backend.
func NewStores(base Base) *Stores {
	return &Stores{
		Notes:     NewEntityStore(base, models.KindNote),
		Tasks:     NewEntityStore(base, models.KindTask),
		Checklist: NewEntityStore(base, models.KindChecklistItem),
		Audit:     NewAuditStore(base),
	}
}

// For returns the store for kind.
func (s *Stores) For(kind models.Kind) (*EntityStore, error) {
	switch kind {
	case models.KindNote:
		return s.Notes, nil
	case models.KindTask:
		return s.Tasks, nil
	case models.KindChecklistItem:
		return s.Checklist, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", models.ErrValidation, kind)
	}
}
