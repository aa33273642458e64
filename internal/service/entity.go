package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/livesync"
	"github.com/ernanint/notas-de-vidro/internal/metrics"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/store"
	"github.com/ernanint/notas-de-vidro/internal/view"
)

// EntityStore is the persistence surface for one entity kind.
type EntityStore interface {
	Create(ctx context.Context, currentUser string, req models.CreateRequest) (*models.Entity, error)
	Get(ctx context.Context, id, currentUser string) (*models.Entity, error)
	Update(ctx context.Context, id, currentUser string, req models.UpdateRequest) (*models.Entity, error)
	ToggleCompletion(ctx context.Context, id, currentUser string) (*models.Entity, error)
	Share(ctx context.Context, id, currentUser, target string) (*models.Entity, error)
	Unshare(ctx context.Context, id, currentUser, target string) (*models.Entity, error)
	Remove(ctx context.Context, id, currentUser string) error
	List(ctx context.Context, pred store.Predicate) ([]models.Entity, error)
}

// ErrUnknownKind is returned for a kind with no registered store.
var ErrUnknownKind = errors.New("unknown entity kind")

// EntityService wraps the per-kind stores with audit logging, metrics and
// user notices.
type EntityService struct {
	stores  map[models.Kind]EntityStore
	auditor AuditEnqueuer
	notices NoticeSink
	log     *logrus.Logger
}

// NewEntityService creates an EntityService. notices may be nil.
func NewEntityService(
	stores map[models.Kind]EntityStore,
	auditor AuditEnqueuer,
	notices NoticeSink,
	log *logrus.Logger,
) *EntityService {
	if notices == nil {
		notices = discardSink{}
	}

	return &EntityService{stores: stores, auditor: auditor, notices: notices, log: log}
}

func (s *EntityService) store(kind models.Kind) (EntityStore, error) {
	st, ok := s.stores[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return st, nil
}

// List returns every entity of kind that currentUser owns or collaborates on,
// newest first.
func (s *EntityService) List(ctx context.Context, kind models.Kind, currentUser string) ([]models.Entity, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}

	owned, err := st.List(ctx, store.OwnedBy(currentUser))
	if err != nil {
		return nil, err
	}

	shared, err := st.List(ctx, store.SharedWith(currentUser))
	if err != nil {
		return nil, err
	}

	return view.Filter(livesync.Merge(owned, shared), currentUser), nil
}

// Get returns one entity.
func (s *EntityService) Get(ctx context.Context, kind models.Kind, id, currentUser string) (*models.Entity, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}

	return st.Get(ctx, id, currentUser)
}

// History returns an entity's change history, newest first.
func (s *EntityService) History(ctx context.Context, kind models.Kind, id, currentUser string) ([]models.ChangeRecord, error) {
	e, err := s.Get(ctx, kind, id, currentUser)
	if err != nil {
		return nil, err
	}

	return e.ChangeHistory, nil
}

// Create creates an entity owned by currentUser.
func (s *EntityService) Create(
	ctx context.Context,
	kind models.Kind,
	currentUser string,
	req models.CreateRequest,
) (*models.Entity, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}

	e, err := st.Create(ctx, currentUser, req)
	if err != nil {
		return nil, s.fail(kind, "create", "", currentUser, err)
	}

	s.succeed(kind, "create", e.ID, currentUser, map[string]any{"title": e.Title}, SuccessNotice(kind, "create", e.ID))

	return e, nil
}

// Update applies a partial update.
func (s *EntityService) Update(
	ctx context.Context,
	kind models.Kind,
	id, currentUser string,
	req models.UpdateRequest,
) (*models.Entity, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}

	e, err := st.Update(ctx, id, currentUser, req)
	if err != nil {
		return nil, s.fail(kind, "update", id, currentUser, err)
	}

	var detail map[string]any
	if e.LastChange != nil {
		detail = map[string]any{"fields": e.LastChange.Fields}
	}

	s.succeed(kind, "update", id, currentUser, detail, SuccessNotice(kind, "update", id))

	return e, nil
}

// Toggle flips completion on a task or checklist item.
func (s *EntityService) Toggle(ctx context.Context, kind models.Kind, id, currentUser string) (*models.Entity, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}

	e, err := st.ToggleCompletion(ctx, id, currentUser)
	if err != nil {
		return nil, s.fail(kind, "toggle", id, currentUser, err)
	}

	n := SuccessNotice(kind, "toggle", id)
	if e.Completed {
		n.Message = "Marked complete"
	} else {
		n.Message = "Reopened"
	}

	s.succeed(kind, "toggle", id, currentUser, map[string]any{"completed": e.Completed}, n)

	return e, nil
}

// Share adds target as a collaborator and notifies them.
func (s *EntityService) Share(ctx context.Context, kind models.Kind, id, currentUser, target string) (*models.Entity, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}

	e, err := st.Share(ctx, id, currentUser, target)
	if err != nil {
		return nil, s.fail(kind, "share", id, currentUser, err)
	}

	n := SuccessNotice(kind, "share", id)
	n.Message = target + " now has access"
	s.succeed(kind, "share", id, currentUser, map[string]any{"target": target}, n)

	s.notices.Notify(target, Notice{
		Level:    NoticeSuccess,
		Title:    fmt.Sprintf("%s shared with you", capitalize(kind.Label())),
		Message:  fmt.Sprintf("%s shared %q with you", currentUser, e.Title),
		Kind:     kind,
		EntityID: id,
	})

	return e, nil
}

// Unshare removes target from the collaborators. Removing a user who had no
// access is neither audited nor announced.
func (s *EntityService) Unshare(ctx context.Context, kind models.Kind, id, currentUser, target string) (*models.Entity, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}

	e, err := st.Unshare(ctx, id, currentUser, target)
	if err != nil {
		return nil, s.fail(kind, "unshare", id, currentUser, err)
	}

	if e.LastChange == nil {
		return e, nil
	}

	n := SuccessNotice(kind, "unshare", id)
	n.Message = target + " no longer has access"
	s.succeed(kind, "unshare", id, currentUser, map[string]any{"target": target}, n)

	return e, nil
}

// Delete removes an entity.
func (s *EntityService) Delete(ctx context.Context, kind models.Kind, id, currentUser string) error {
	st, err := s.store(kind)
	if err != nil {
		return err
	}

	if err := st.Remove(ctx, id, currentUser); err != nil {
		return s.fail(kind, "delete", id, currentUser, err)
	}

	s.succeed(kind, "delete", id, currentUser, nil, SuccessNotice(kind, "delete", id))

	return nil
}

func (s *EntityService) succeed(kind models.Kind, op, id, actor string, detail map[string]any, n Notice) {
	metrics.MutationsTotal.WithLabelValues(string(kind), op, "ok").Inc()

	s.auditor.Enqueue(&AuditJob{
		Action:   kind.Label() + "." + op,
		Kind:     kind,
		EntityID: id,
		Actor:    actor,
		Detail:   detail,
	})

	s.log.WithFields(logrus.Fields{
		"kind": kind, "op": op, "entity_id": id, "user": actor,
	}).Debug(n.Title)

	s.notices.Notify(actor, n)
}

func (s *EntityService) fail(kind models.Kind, op, id, actor string, err error) error {
	cat := models.CategoryOf(err)
	metrics.MutationsTotal.WithLabelValues(string(kind), op, string(cat)).Inc()

	if cat == models.CategoryInternal || cat == models.CategoryBackendUnavailable {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind": kind, "op": op, "id": id,
		}).Warn("entity operation failed")
	}

	if actor != "" {
		s.notices.Notify(actor, FailureNotice(kind, op, id, err))
	}

	return err
}
