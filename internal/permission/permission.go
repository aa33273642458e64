// Package permission holds the ownership rules that decide who may act on a shared entity.
//
// The owner may do anything. A collaborator may edit content and toggle
// completion but may not change the collaborator set or delete the entity.
// Anyone else may do nothing.
package permission

import (
	"fmt"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// CanEdit reports whether userID may edit content fields or toggle completion.
func CanEdit(e *models.Entity, userID string) bool {
	if e == nil || userID == "" {
		return false
	}

	return e.Owner == userID || e.HasCollaborator(userID)
}

// CanShare reports whether userID may add or remove collaborators.
func CanShare(e *models.Entity, userID string) bool {
	return isOwner(e, userID)
}

// CanDelete reports whether userID may delete the entity.
func CanDelete(e *models.Entity, userID string) bool {
	return isOwner(e, userID)
}

// CheckEdit returns ErrPermissionDenied unless userID may edit e.
func CheckEdit(e *models.Entity, userID string) error {
	if !CanEdit(e, userID) {
		return denied("edit", e, userID)
	}

	return nil
}

// CheckShare returns ErrPermissionDenied unless userID owns e.
func CheckShare(e *models.Entity, userID string) error {
	if !CanShare(e, userID) {
		return denied("share", e, userID)
	}

	return nil
}

// CheckDelete returns ErrPermissionDenied unless userID owns e.
func CheckDelete(e *models.Entity, userID string) error {
	if !CanDelete(e, userID) {
		return denied("delete", e, userID)
	}

	return nil
}

func isOwner(e *models.Entity, userID string) bool {
	return e != nil && userID != "" && e.Owner == userID
}

func denied(action string, e *models.Entity, userID string) error {
	id := ""
	if e != nil {
		id = e.ID
	}

	return fmt.Errorf("%w: %s may not %s %s", models.ErrPermissionDenied, userID, action, id)
}
