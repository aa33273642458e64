package models

import "time"

// AuditEntry records one mutation for the audit log.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityKind Kind           `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditQueryOpts filters audit log queries. Exactly one of EntityID or Actor is required.
type AuditQueryOpts struct {
	EntityID string
	Actor    string
	Action   string
	Since    *time.Time
	Limit    int
}
