package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/permission"
)

// EntityStore provides create, mutate, share and live query operations for
// one kind of shared entity. Every successful mutation appends exactly one
// change record and advances updatedAt.
type EntityStore struct {
	Base
	kind models.Kind
}

// NewEntityStore creates an EntityStore for kind.
func NewEntityStore(base Base, kind models.Kind) *EntityStore {
	return &EntityStore{Base: base, kind: kind}
}

// Kind returns the entity kind this store manages.
func (s *EntityStore) Kind() models.Kind {
	return s.kind
}

func (s *EntityStore) collection() string {
	return s.kind.Collection()
}

// Create inserts a new entity owned by currentUser with no collaborators and
// a single "created" history record.
func (s *EntityStore) Create(ctx context.Context, currentUser string, req models.CreateRequest) (*models.Entity, error) {
	if currentUser == "" {
		return nil, fmt.Errorf("creating %s: %w", s.kind.Label(), models.ErrUnauthenticated)
	}

	if err := req.Validate(s.kind); err != nil {
		return nil, err
	}

	now := s.now()

	title := req.Title
	if title == "" {
		title = s.kind.DefaultTitle()
	}

	rec := s.newChange(currentUser, models.ChangeCreated, now)

	fields := map[string]any{
		fieldKind:            string(s.kind),
		fieldTitle:           title,
		fieldOwner:           currentUser,
		fieldSharedWith:      []string{},
		fieldCreatedAt:       now,
		fieldUpdatedAt:       now,
		fieldChangeHistory:   []storedChange{encodeChange(rec)},
		fieldBackgroundColor: req.BackgroundColor,
		fieldBackgroundImage: req.BackgroundImage,
	}

	switch s.kind {
	case models.KindNote:
		fields[fieldContent] = req.Content
		fields[fieldPassword] = req.Password
		fields[fieldIsLocked] = req.Password != ""
	case models.KindTask:
		priority := req.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}

		fields[fieldDescription] = req.Description
		fields[fieldPriority] = string(priority)
		fields[fieldDueDate] = req.DueDate
		fields[fieldCompleted] = false
	case models.KindChecklistItem:
		fields[fieldCompleted] = false
	}

	id, err := s.Backend.Insert(ctx, s.collection(), sanitize(fields, s.Log))
	if err != nil {
		return nil, backendErr("creating", s.kind, err)
	}

	s.Log.WithFields(logrus.Fields{
		"kind":  s.kind,
		"id":    id,
		"owner": currentUser,
	}).Debug("entity created")

	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	e.LastChange = &rec

	return e, nil
}

// Get returns the entity if currentUser is its owner or a collaborator.
func (s *EntityStore) Get(ctx context.Context, id, currentUser string) (*models.Entity, error) {
	if currentUser == "" {
		return nil, fmt.Errorf("loading %s: %w", s.kind.Label(), models.ErrUnauthenticated)
	}

	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := permission.CheckEdit(e, currentUser); err != nil {
		return nil, err
	}

	return e, nil
}

// Update applies a partial update. The change record lists the fields whose
// value actually changed, or carries req.Reason when one is given.
func (s *EntityStore) Update(ctx context.Context, id, currentUser string, req models.UpdateRequest) (*models.Entity, error) {
	if err := req.Validate(s.kind); err != nil {
		return nil, err
	}

	cur, err := s.Get(ctx, id, currentUser)
	if err != nil {
		return nil, err
	}

	patch, changed := buildPatch(cur, &req)

	rec := s.newChange(currentUser, models.ChangeModified, time.Time{})
	rec.Fields = changed
	rec.Reason = req.Reason

	return s.mutate(ctx, cur, rec, patch)
}

// ToggleCompletion flips the completed flag of a task or checklist item.
func (s *EntityStore) ToggleCompletion(ctx context.Context, id, currentUser string) (*models.Entity, error) {
	if !s.kind.Completable() {
		return nil, fmt.Errorf("toggling %s: %w", s.kind.Label(), models.ErrUnsupported)
	}

	cur, err := s.Get(ctx, id, currentUser)
	if err != nil {
		return nil, err
	}

	completed := !cur.Completed

	kind := models.ChangeReopened
	if completed {
		kind = models.ChangeCompleted
	}

	rec := s.newChange(currentUser, kind, time.Time{})

	return s.mutate(ctx, cur, rec, map[string]any{fieldCompleted: completed})
}

// Share adds target to the collaborator set. Only the owner may share.
func (s *EntityStore) Share(ctx context.Context, id, currentUser, target string) (*models.Entity, error) {
	cur, err := s.loadForShare(ctx, id, currentUser)
	if err != nil {
		return nil, err
	}

	if cur.HasCollaborator(target) {
		return nil, fmt.Errorf("sharing %s %s with %s: %w", s.kind.Label(), id, target, models.ErrAlreadyShared)
	}

	if target == "" || target == currentUser {
		return nil, fmt.Errorf("sharing %s %s with %q: %w", s.kind.Label(), id, target, models.ErrInvalidTarget)
	}

	rec := s.newChange(currentUser, models.ChangeShared, time.Time{})
	rec.Target = target

	return s.mutate(ctx, cur, rec, map[string]any{fieldSharedWith: docstore.Union(target)})
}

// Unshare removes target from the collaborator set. Removing a user who is
// not a collaborator succeeds without recording a change.
func (s *EntityStore) Unshare(ctx context.Context, id, currentUser, target string) (*models.Entity, error) {
	cur, err := s.loadForShare(ctx, id, currentUser)
	if err != nil {
		return nil, err
	}

	if !cur.HasCollaborator(target) {
		return cur, nil
	}

	rec := s.newChange(currentUser, models.ChangeUnshared, time.Time{})
	rec.Target = target

	return s.mutate(ctx, cur, rec, map[string]any{fieldSharedWith: docstore.Remove(target)})
}

// Remove deletes the entity. Only the owner may delete.
func (s *EntityStore) Remove(ctx context.Context, id, currentUser string) error {
	if currentUser == "" {
		return fmt.Errorf("deleting %s: %w", s.kind.Label(), models.ErrUnauthenticated)
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := permission.CheckDelete(cur, currentUser); err != nil {
		return err
	}

	if err := s.Backend.Delete(ctx, s.collection(), id); err != nil {
		return backendErr("deleting", s.kind, err)
	}

	return nil
}

// List returns the entities matching pred once.
func (s *EntityStore) List(ctx context.Context, pred Predicate) ([]models.Entity, error) {
	if pred.User == "" {
		return nil, fmt.Errorf("listing %s: %w", s.kind.Label(), models.ErrUnauthenticated)
	}

	docs, err := s.Backend.Query(ctx, s.collection(), pred.filter())
	if err != nil {
		return nil, backendErr("listing", s.kind, err)
	}

	return decodeAll(s.kind, docs)
}

// Subscribe opens a live query. fn receives the full matching set on every
// change, or an error when the query or decoding fails.
func (s *EntityStore) Subscribe(pred Predicate, fn func([]models.Entity, error)) (docstore.Unsubscribe, error) {
	if pred.User == "" {
		return nil, fmt.Errorf("subscribing to %s: %w", s.kind.Label(), models.ErrUnauthenticated)
	}

	unsub, err := s.Backend.Subscribe(s.collection(), pred.filter(), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, backendErr("watching", s.kind, err))
			return
		}

		list, err := decodeAll(s.kind, docs)
		if err != nil {
			fn(nil, err)
			return
		}

		fn(list, nil)
	})
	if err != nil {
		return nil, backendErr("subscribing to", s.kind, err)
	}

	return unsub, nil
}

func (s *EntityStore) load(ctx context.Context, id string) (*models.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("loading %s: %w", s.kind.Label(), models.ErrNotFound)
	}

	doc, err := s.Backend.Get(ctx, s.collection(), id)
	if err != nil {
		return nil, backendErr("loading", s.kind, err)
	}

	return decodeEntity(s.kind, *doc)
}

func (s *EntityStore) loadForShare(ctx context.Context, id, currentUser string) (*models.Entity, error) {
	if currentUser == "" {
		return nil, fmt.Errorf("sharing %s: %w", s.kind.Label(), models.ErrUnauthenticated)
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := permission.CheckShare(cur, currentUser); err != nil {
		return nil, err
	}

	return cur, nil
}

// mutate appends rec to the history together with patch in one atomic
// write and returns the stored result. The backend stamps both updatedAt and
// rec with the later of now and the stored updatedAt, so concurrent writers
// keep the history ordered.
func (s *EntityStore) mutate(ctx context.Context, cur *models.Entity, rec models.ChangeRecord, patch map[string]any) (*models.Entity, error) {
	patch = sanitize(patch, s.Log)
	patch[fieldUpdatedAt] = docstore.ServerTimestamp{At: s.now(), NotBefore: fieldUpdatedAt}
	patch[fieldChangeHistory] = docstore.Union(encodeChange(rec)).Stamped(fieldTimestamp, fieldUpdatedAt)

	if err := s.Backend.UpdateFields(ctx, s.collection(), cur.ID, patch); err != nil {
		return nil, backendErr("updating", s.kind, err)
	}

	s.Log.WithFields(logrus.Fields{
		"kind":   s.kind,
		"id":     cur.ID,
		"actor":  rec.ActorID,
		"change": rec.Action(),
	}).Debug("entity updated")

	e, err := s.load(ctx, cur.ID)
	if err != nil {
		return nil, err
	}

	for i := range e.ChangeHistory {
		if e.ChangeHistory[i].ID == rec.ID {
			own := e.ChangeHistory[i]
			e.LastChange = &own

			break
		}
	}

	return e, nil
}
