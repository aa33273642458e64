package client

import (
	"context"
	"net/url"
)

// EntityService handles one entity kind.
type EntityService struct {
	c    *Client
	kind string
}

type entityListResponse struct {
	Items []Entity `json:"items"`
	Count int      `json:"count"`
}

func (s *EntityService) path(id string, suffix ...string) string {
	p := "/api/v1/" + s.kind
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	for _, part := range suffix {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// Kind returns the URL kind this service addresses.
func (s *EntityService) Kind() string {
	return s.kind
}

// List returns every entity the caller owns or collaborates on, newest first.
func (s *EntityService) List(ctx context.Context) ([]Entity, error) {
	var resp entityListResponse
	if err := s.c.get(ctx, s.path(""), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Get returns a single entity by ID.
func (s *EntityService) Get(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	if err := s.c.get(ctx, s.path(id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create creates an entity owned by the caller.
func (s *EntityService) Create(ctx context.Context, req *CreateRequest) (*Entity, error) {
	var e Entity
	if err := s.c.post(ctx, s.path(""), req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Update applies a partial update.
func (s *EntityService) Update(ctx context.Context, id string, req *UpdateRequest) (*Entity, error) {
	var e Entity
	if err := s.c.put(ctx, s.path(id), req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Toggle flips the completion state of a task or checklist item.
func (s *EntityService) Toggle(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	if err := s.c.post(ctx, s.path(id, "toggle"), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Share grants user access to the entity. Only the owner may share.
func (s *EntityService) Share(ctx context.Context, id, user string) (*Entity, error) {
	var e Entity
	body := map[string]string{"user": user}
	if err := s.c.post(ctx, s.path(id, "share"), body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Unshare revokes user's access.
func (s *EntityService) Unshare(ctx context.Context, id, user string) (*Entity, error) {
	var e Entity
	if err := s.c.del(ctx, s.path(id, "share", user), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes an entity. Only the owner may delete.
func (s *EntityService) Delete(ctx context.Context, id string) error {
	return s.c.del(ctx, s.path(id), nil, nil)
}

// History returns the change history of an entity, newest first.
func (s *EntityService) History(ctx context.Context, id string) ([]ChangeRecord, error) {
	var resp struct {
		History []ChangeRecord `json:"history"`
	}
	if err := s.c.get(ctx, s.path(id, "history"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}
