package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/models"
)

// AuditCollection holds one document per recorded mutation.
const AuditCollection = "audit_log"

const (
	defaultAuditLimit = 50
	maxListLimit      = 1000
)

// AuditStore records and queries audit log entries.
type AuditStore struct {
	Base
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(base Base) *AuditStore {
	return &AuditStore{Base: base}
}

type storedAudit struct {
	Action     string         `json:"action"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId"`
	Actor      string         `json:"actor"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  flexTime       `json:"createdAt"`
}

// RecordAudit inserts an audit log entry.
func (s *AuditStore) RecordAudit(ctx context.Context, entry models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	fields := map[string]any{
		"action":     entry.Action,
		"entityKind": string(entry.EntityKind),
		"entityId":   entry.EntityID,
		"actor":      entry.Actor,
		"createdAt":  entry.CreatedAt.UTC(),
	}

	if len(entry.Detail) > 0 {
		fields["detail"] = entry.Detail
	}

	if _, err := s.Backend.Insert(ctx, AuditCollection, fields); err != nil {
		return fmt.Errorf("%w: inserting audit entry: %w", models.ErrBackendUnavailable, err)
	}

	return nil
}

// QueryAudit returns entries for one entity or one actor, newest first.
// The bool reports whether more entries exist beyond the limit.
func (s *AuditStore) QueryAudit(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, bool, error) {
	var filter docstore.Filter

	switch {
	case opts.EntityID != "":
		filter = docstore.Equals("entityId", opts.EntityID)
	case opts.Actor != "":
		filter = docstore.Equals("actor", opts.Actor)
	default:
		return nil, false, fmt.Errorf("%w: entity_id or actor is required", models.ErrValidation)
	}

	docs, err := s.Backend.Query(ctx, AuditCollection, filter)
	if err != nil {
		return nil, false, fmt.Errorf("%w: querying audit log: %w", models.ErrBackendUnavailable, err)
	}

	entries := make([]models.AuditEntry, 0, len(docs))

	for _, d := range docs {
		e, err := decodeAudit(d)
		if err != nil {
			s.Log.WithError(err).WithField("id", d.ID).Warn("skipping unreadable audit entry")
			continue
		}

		if opts.Actor != "" && e.Actor != opts.Actor {
			continue
		}

		if opts.Action != "" && e.Action != opts.Action {
			continue
		}

		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}

		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b models.AuditEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	limit = min(limit, maxListLimit)

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	return entries, hasMore, nil
}

func decodeAudit(d docstore.Document) (models.AuditEntry, error) {
	data, err := json.Marshal(d.Fields)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("re-encoding audit entry: %w", err)
	}

	var sa storedAudit
	if err := json.Unmarshal(data, &sa); err != nil {
		return models.AuditEntry{}, fmt.Errorf("decoding audit entry: %w", err)
	}

	return models.AuditEntry{
		ID:         d.ID,
		Action:     sa.Action,
		EntityKind: models.Kind(sa.EntityKind),
		EntityID:   sa.EntityID,
		Actor:      sa.Actor,
		Detail:     sa.Detail,
		CreatedAt:  time.Time(sa.CreatedAt),
	}, nil
}
