// Package store provides the entity stores for shared notes, tasks and
// checklist items, and the audit log store, on top of a docstore backend.
//
// Each store embeds shared dependencies via Base. Stores never import each
// other; shared logic lives in this file or in codec.go and sanitize.go.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/models"
)

// Directory resolves a user id to the name shown in change history.
type Directory interface {
	DisplayName(userID string) string
}

// Base contains shared dependencies for all stores.
type Base struct {
	Backend   docstore.Backend
	Log       *logrus.Logger
	Clock     func() time.Time
	Directory Directory
}

// now returns the current time in UTC without a monotonic reading.
func (b *Base) now() time.Time {
	if b.Clock != nil {
		return b.Clock().UTC()
	}

	return time.Now().UTC()
}

func (b *Base) displayName(userID string) string {
	if b.Directory != nil {
		if name := b.Directory.DisplayName(userID); name != "" {
			return name
		}
	}

	return userID
}

func (b *Base) newChange(actor string, kind models.ChangeKind, at time.Time) models.ChangeRecord {
	return models.ChangeRecord{
		ID:               ulid.Make().String(),
		ActorID:          actor,
		ActorDisplayName: b.displayName(actor),
		Kind:             kind,
		OccurredAt:       at,
	}
}

// backendErr maps a docstore error onto the entity error taxonomy.
func backendErr(op string, kind models.Kind, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, kind.Label(), models.ErrNotFound)
	}

	return fmt.Errorf("%w: %s %s: %w", models.ErrBackendUnavailable, op, kind.Label(), err)
}
