package models

import (
	"fmt"
	"time"
)

// Field length limits.
const (
	MaxTitleLen           = 500
	MaxContentLen         = 100_000
	MaxPasswordLen        = 200
	MaxColorLen           = 64
	MaxBackgroundImageLen = 8 << 20
	MaxReasonLen          = 500
)

// CreateRequest is the payload for creating an entity. Fields that do not
// apply to the target kind must be left empty.
type CreateRequest struct {
	Title           string     `json:"title"`
	Content         string     `json:"content,omitempty"`
	Password        string     `json:"password,omitempty"`
	Description     string     `json:"description,omitempty"`
	Priority        Priority   `json:"priority,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	BackgroundColor string     `json:"background_color,omitempty"`
	BackgroundImage string     `json:"background_image,omitempty"`
}

// Validate checks field limits and that only fields carried by kind are set.
func (r *CreateRequest) Validate(kind Kind) error {
	if err := checkLen("title", r.Title, MaxTitleLen); err != nil {
		return err
	}

	if err := checkCommon(r.BackgroundColor, r.BackgroundImage); err != nil {
		return err
	}

	if kind != KindNote && (r.Content != "" || r.Password != "") {
		return unsupportedField(kind, "content and password")
	}

	if kind != KindTask && (r.Description != "" || r.Priority != "" || r.DueDate != nil) {
		return unsupportedField(kind, "description, priority and due date")
	}

	if r.Priority != "" && !r.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, r.Priority)
	}

	if err := checkLen("content", r.Content, MaxContentLen); err != nil {
		return err
	}

	if err := checkLen("description", r.Description, MaxContentLen); err != nil {
		return err
	}

	return checkLen("password", r.Password, MaxPasswordLen)
}

// UpdateRequest is a partial update. A nil field is left untouched; a pointer
// to the empty string clears an optional field.
type UpdateRequest struct {
	Title           *string    `json:"title,omitempty"`
	Content         *string    `json:"content,omitempty"`
	Password        *string    `json:"password,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Priority        *Priority  `json:"priority,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	ClearDueDate    bool       `json:"clear_due_date,omitempty"`
	Completed       *bool      `json:"completed,omitempty"`
	BackgroundColor *string    `json:"background_color,omitempty"`
	BackgroundImage *string    `json:"background_image,omitempty"`

	// Reason overrides the rendered action of the resulting change record.
	Reason string `json:"reason,omitempty"`
}

// Validate checks field limits and that only fields carried by kind are set.
func (r *UpdateRequest) Validate(kind Kind) error {
	if r.Title != nil {
		if *r.Title == "" {
			return fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}

		if err := checkLen("title", *r.Title, MaxTitleLen); err != nil {
			return err
		}
	}

	if err := checkCommon(deref(r.BackgroundColor), deref(r.BackgroundImage)); err != nil {
		return err
	}

	if kind != KindNote && (r.Content != nil || r.Password != nil) {
		return unsupportedField(kind, "content and password")
	}

	if kind != KindTask && (r.Description != nil || r.Priority != nil || r.DueDate != nil || r.ClearDueDate) {
		return unsupportedField(kind, "description, priority and due date")
	}

	if kind == KindNote && r.Completed != nil {
		return unsupportedField(kind, "completed")
	}

	if r.Priority != nil && !r.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, *r.Priority)
	}

	if r.DueDate != nil && r.ClearDueDate {
		return fmt.Errorf("%w: due_date and clear_due_date are mutually exclusive", ErrValidation)
	}

	if err := checkLen("content", deref(r.Content), MaxContentLen); err != nil {
		return err
	}

	if err := checkLen("description", deref(r.Description), MaxContentLen); err != nil {
		return err
	}

	if err := checkLen("password", deref(r.Password), MaxPasswordLen); err != nil {
		return err
	}

	return checkLen("reason", r.Reason, MaxReasonLen)
}

func checkCommon(color, image string) error {
	if err := checkLen("background_color", color, MaxColorLen); err != nil {
		return err
	}

	return checkLen("background_image", image, MaxBackgroundImageLen)
}

func checkLen(field, v string, maxLen int) error {
	if len(v) > maxLen {
		return ErrFieldTooLong(field, maxLen)
	}

	return nil
}

func unsupportedField(kind Kind, fields string) error {
	return fmt.Errorf("%w: %s not supported for kind %s", ErrValidation, fields, kind)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
