package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// AuditService reads the audit trail of mutations the caller made.
type AuditService struct {
	c *Client
}

type auditPage struct {
	Data    []AuditEntry `json:"data"`
	HasMore bool         `json:"has_more"`
}

func (o *AuditQueryOptions) values() url.Values {
	v := url.Values{}
	if o == nil {
		return v
	}
	for key, val := range map[string]string{"entity_id": o.EntityID, "action": o.Action} {
		if val != "" {
			v.Set(key, val)
		}
	}
	if o.Since != nil {
		v.Set("since", o.Since.UTC().Format(time.RFC3339))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	return v
}

// Query returns matching entries, newest first, and whether more exist
// beyond opts.Limit.
func (s *AuditService) Query(ctx context.Context, opts *AuditQueryOptions) ([]AuditEntry, bool, error) {
	var page auditPage
	if err := s.c.get(ctx, "/api/v1/audit", opts.values(), &page); err != nil {
		return nil, false, err
	}
	return page.Data, page.HasMore, nil
}

// ForEntity returns the caller's recorded actions on one entity.
func (s *AuditService) ForEntity(ctx context.Context, id string, limit int) ([]AuditEntry, error) {
	entries, _, err := s.Query(ctx, &AuditQueryOptions{EntityID: id, Limit: limit})
	return entries, err
}
