// Package models defines the shared entity types: notes, tasks and checklist items.
package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind identifies which variant of shared entity a record is.
type Kind string

// Entity kinds.
const (
	KindNote          Kind = "note"
	KindTask          Kind = "task"
	KindChecklistItem Kind = "checklist_item"
)

// Kinds lists every entity kind in display order.
var Kinds = []Kind{KindNote, KindTask, KindChecklistItem}

// ParseKind accepts a kind name in singular or plural form, as used in URLs and CLI args.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "note", "notes":
		return KindNote, nil
	case "task", "tasks":
		return KindTask, nil
	case "checklist", "checklist_item", "checklist_items", "item", "items":
		return KindChecklistItem, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, s)
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// Collection returns the document collection that stores entities of this kind.
func (k Kind) Collection() string {
	switch k {
	case KindNote:
		return "shared_notes"
	case KindTask:
		return "shared_tasks"
	case KindChecklistItem:
		return "checklist_items"
	default:
		return ""
	}
}

// Plural is the path segment used for this kind on the HTTP surface.
func (k Kind) Plural() string {
	switch k {
	case KindNote:
		return "notes"
	case KindTask:
		return "tasks"
	default:
		return "checklist"
	}
}

// Label is a short human word for the kind.
func (k Kind) Label() string {
	switch k {
	case KindNote:
		return "note"
	case KindTask:
		return "task"
	default:
		return "item"
	}
}

// DefaultTitle is used when an entity is created without a title.
func (k Kind) DefaultTitle() string {
	switch k {
	case KindNote:
		return "New shared note"
	case KindTask:
		return "New shared task"
	default:
		return "New item"
	}
}

// Completable reports whether entities of this kind carry a completion flag.
func (k Kind) Completable() bool {
	return k == KindTask || k == KindChecklistItem
}

// Priority is a task's urgency.
type Priority string

// Task priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Entity is a shared note, task or checklist item. Kind-specific fields are
// left at their zero value for kinds that do not carry them.
type Entity struct {
	ID              string         `json:"id"`
	Kind            Kind           `json:"kind"`
	Title           string         `json:"title"`
	Owner           string         `json:"owner"`
	Collaborators   []string       `json:"shared_with"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ChangeHistory   []ChangeRecord `json:"change_history"`
	BackgroundColor string         `json:"background_color,omitempty"`
	BackgroundImage string         `json:"background_image,omitempty"`

	// Note fields. Password is stored as given; the lock is advisory only.
	Content  string `json:"content,omitempty"`
	Password string `json:"password,omitempty"`
	IsLocked bool   `json:"is_locked,omitempty"`

	// Task fields.
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	// Completed applies to tasks and checklist items.
	Completed bool `json:"completed"`

	// LastChange is the record written by the mutation that returned this
	// entity. It is nil on reads and on mutations that changed nothing.
	LastChange *ChangeRecord `json:"-"`
}

// HasCollaborator reports whether userID is in the entity's collaborator set.
func (e *Entity) HasCollaborator(userID string) bool {
	return slices.Contains(e.Collaborators, userID)
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() Entity {
	c := *e
	c.Collaborators = slices.Clone(e.Collaborators)
	c.ChangeHistory = make([]ChangeRecord, len(e.ChangeHistory))

	for i := range e.ChangeHistory {
		c.ChangeHistory[i] = e.ChangeHistory[i].Clone()
	}

	if e.DueDate != nil {
		d := *e.DueDate
		c.DueDate = &d
	}

	if e.LastChange != nil {
		lc := e.LastChange.Clone()
		c.LastChange = &lc
	}

	return c
}

// CloneEntities deep-copies a list of entities.
func CloneEntities(list []Entity) []Entity {
	if list == nil {
		return nil
	}

	out := make([]Entity, len(list))
	for i := range list {
		out[i] = list[i].Clone()
	}

	return out
}
