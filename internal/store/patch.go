package store

import (
	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/models"
)

// buildPatch converts an update request into a document patch and the list of
// fields whose value differs from cur. Every provided field is written even if
// unchanged; clearing an optional field deletes it.
func buildPatch(cur *models.Entity, req *models.UpdateRequest) (map[string]any, []string) {
	patch := map[string]any{}

	var changed []string

	setString := func(field, label string, next *string, prev string) {
		if next == nil {
			return
		}

		if *next == "" {
			patch[field] = docstore.DeleteField{}
		} else {
			patch[field] = *next
		}

		if *next != prev {
			changed = append(changed, label)
		}
	}

	setString(fieldTitle, "title", req.Title, cur.Title)
	setString(fieldContent, "content", req.Content, cur.Content)

	if req.Password != nil {
		setString(fieldPassword, "password", req.Password, cur.Password)
		patch[fieldIsLocked] = *req.Password != ""
	}

	setString(fieldDescription, "description", req.Description, cur.Description)

	if req.Priority != nil {
		patch[fieldPriority] = string(*req.Priority)

		if *req.Priority != cur.Priority {
			changed = append(changed, "priority")
		}
	}

	switch {
	case req.DueDate != nil:
		patch[fieldDueDate] = req.DueDate.UTC()

		if cur.DueDate == nil || !cur.DueDate.Equal(*req.DueDate) {
			changed = append(changed, "due date")
		}
	case req.ClearDueDate:
		patch[fieldDueDate] = docstore.DeleteField{}

		if cur.DueDate != nil {
			changed = append(changed, "due date")
		}
	}

	if req.Completed != nil {
		patch[fieldCompleted] = *req.Completed

		if *req.Completed != cur.Completed {
			changed = append(changed, "completed")
		}
	}

	setString(fieldBackgroundColor, "background color", req.BackgroundColor, cur.BackgroundColor)
	setString(fieldBackgroundImage, "background image", req.BackgroundImage, cur.BackgroundImage)

	return patch, changed
}
