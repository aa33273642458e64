// Package docstore defines the document storage contract that entity stores
// are built on: collections of JSON documents with atomic field updates,
// array union/remove and live queries.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// Sentinel errors returned by backends.
var (
	ErrNotFound     = errors.New("document not found")
	ErrClosed       = errors.New("backend closed")
	ErrInvalidField = errors.New("invalid field name")
)

// Document is one stored document. Fields holds JSON-compatible values only:
// strings, float64, bool, nil, []any and map[string]any.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// SnapshotFunc receives the full current result set of a live query, or an
// error when the query could not be evaluated.
type SnapshotFunc func(docs []Document, err error)

// Unsubscribe stops a live query. It is idempotent.
type Unsubscribe func()

// Backend is a document database. Implementations must apply UpdateFields
// atomically with respect to concurrent writers of the same document.
type Backend interface {
	Insert(ctx context.Context, collection string, fields map[string]any) (string, error)
	UpdateFields(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	Subscribe(collection string, filter Filter, fn SnapshotFunc) (Unsubscribe, error)
	Close() error
}

// Op is a filter operator.
type Op int

// Filter operators.
const (
	OpEquals Op = iota
	OpArrayContains
)

// Filter selects documents by a single top-level field.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Equals matches documents whose field equals value.
func Equals(field, value string) Filter {
	return Filter{Field: field, Op: OpEquals, Value: value}
}

// ArrayContains matches documents whose array field contains value.
func ArrayContains(field, value string) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

var validField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validate rejects field names that are unsafe to embed in a JSON path.
func (f Filter) Validate() error {
	if !validField.MatchString(f.Field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
	}

	if f.Op != OpEquals && f.Op != OpArrayContains {
		return fmt.Errorf("unknown filter op %d", f.Op)
	}

	return nil
}

// Match reports whether fields satisfies the filter.
func (f Filter) Match(fields map[string]any) bool {
	v, ok := fields[f.Field]
	if !ok {
		return false
	}

	switch f.Op {
	case OpEquals:
		s, ok := v.(string)
		return ok && s == f.Value
	case OpArrayContains:
		arr, ok := v.([]any)
		return ok && slices.Contains(arr, any(f.Value))
	default:
		return false
	}
}

func (f Filter) String() string {
	if f.Op == OpArrayContains {
		return f.Field + " array-contains " + f.Value
	}

	return f.Field + " == " + f.Value
}

// ValidateCollection rejects collection names that are empty or unsafe.
func ValidateCollection(name string) error {
	if !validField.MatchString(name) {
		return fmt.Errorf("%w: collection %q", ErrInvalidField, name)
	}

	return nil
}
