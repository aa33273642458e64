package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for entity operations. Callers branch on these with errors.Is.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNotFound           = errors.New("entity not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrAlreadyShared      = errors.New("already shared with user")
	ErrInvalidTarget      = errors.New("invalid share target")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrValidation         = errors.New("validation failed")
	ErrUnsupported        = errors.New("operation not supported for this kind")
)

// ErrFieldTooLong returns a validation error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%w: %s exceeds maximum length of %d", ErrValidation, field, maxLen)
}

// Category classifies an error so surfaces can pick a status code and message.
type Category string

// Error categories.
const (
	CategoryNone               Category = ""
	CategoryUnauthenticated    Category = "unauthenticated"
	CategoryNotFound           Category = "not_found"
	CategoryPermissionDenied   Category = "permission_denied"
	CategoryAlreadyShared      Category = "already_shared"
	CategoryInvalidTarget      Category = "invalid_target"
	CategoryBackendUnavailable Category = "backend_unavailable"
	CategoryValidation         Category = "validation"
	CategoryUnsupported        Category = "unsupported"
	CategoryInternal           Category = "internal"
)

var categories = []struct {
	err error
	cat Category
}{
	{ErrUnauthenticated, CategoryUnauthenticated},
	{ErrPermissionDenied, CategoryPermissionDenied},
	{ErrNotFound, CategoryNotFound},
	{ErrAlreadyShared, CategoryAlreadyShared},
	{ErrInvalidTarget, CategoryInvalidTarget},
	{ErrValidation, CategoryValidation},
	{ErrUnsupported, CategoryUnsupported},
	{ErrBackendUnavailable, CategoryBackendUnavailable},
}

// CategoryOf returns the category of err. A nil error has CategoryNone and an
// unrecognised error is CategoryInternal.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}

	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.cat
		}
	}

	return CategoryInternal
}

// Retryable reports whether an operation failing with this category may succeed if repeated.
func (c Category) Retryable() bool {
	return c == CategoryBackendUnavailable
}
