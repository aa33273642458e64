package api_test

import (
	"context"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// mockEntityService returns configured responses. Unset functions panic, so
// each test wires only what it calls.
type mockEntityService struct {
	list    func(ctx context.Context, kind models.Kind, user string) ([]models.Entity, error)
	get     func(ctx context.Context, kind models.Kind, id, user string) (*models.Entity, error)
	create  func(ctx context.Context, kind models.Kind, user string, req models.CreateRequest) (*models.Entity, error)
	update  func(ctx context.Context, kind models.Kind, id, user string, req models.UpdateRequest) (*models.Entity, error)
	toggle  func(ctx context.Context, kind models.Kind, id, user string) (*models.Entity, error)
	share   func(ctx context.Context, kind models.Kind, id, user, target string) (*models.Entity, error)
	unshare func(ctx context.Context, kind models.Kind, id, user, target string) (*models.Entity, error)
	del     func(ctx context.Context, kind models.Kind, id, user string) error
	history func(ctx context.Context, kind models.Kind, id, user string) ([]models.ChangeRecord, error)
}

func (m *mockEntityService) List(ctx context.Context, kind models.Kind, user string) ([]models.Entity, error) {
	return m.list(ctx, kind, user)
}

func (m *mockEntityService) Get(ctx context.Context, kind models.Kind, id, user string) (*models.Entity, error) {
	return m.get(ctx, kind, id, user)
}

func (m *mockEntityService) Create(ctx context.Context, kind models.Kind, user string, req models.CreateRequest) (*models.Entity, error) {
	return m.create(ctx, kind, user, req)
}

func (m *mockEntityService) Update(ctx context.Context, kind models.Kind, id, user string, req models.UpdateRequest) (*models.Entity, error) {
	return m.update(ctx, kind, id, user, req)
}

func (m *mockEntityService) Toggle(ctx context.Context, kind models.Kind, id, user string) (*models.Entity, error) {
	return m.toggle(ctx, kind, id, user)
}

func (m *mockEntityService) Share(ctx context.Context, kind models.Kind, id, user, target string) (*models.Entity, error) {
	return m.share(ctx, kind, id, user, target)
}

func (m *mockEntityService) Unshare(ctx context.Context, kind models.Kind, id, user, target string) (*models.Entity, error) {
	return m.unshare(ctx, kind, id, user, target)
}

func (m *mockEntityService) Delete(ctx context.Context, kind models.Kind, id, user string) error {
	return m.del(ctx, kind, id, user)
}

func (m *mockEntityService) History(ctx context.Context, kind models.Kind, id, user string) ([]models.ChangeRecord, error) {
	return m.history(ctx, kind, id, user)
}

// mockAuditService returns configured audit entries.
type mockAuditService struct {
	gotOpts models.AuditQueryOpts
	entries []models.AuditEntry
	err     error
}

func (m *mockAuditService) QueryAudit(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, bool, error) {
	m.gotOpts = opts
	return m.entries, false, m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.err
}
