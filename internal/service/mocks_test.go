package service

import (
	"context"
	"sync"

	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/store"
)

// mockEntityStore records calls and returns configured responses.
type mockEntityStore struct {
	mu    sync.Mutex
	calls []string

	create  func(ctx context.Context, currentUser string, req models.CreateRequest) (*models.Entity, error)
	get     func(ctx context.Context, id, currentUser string) (*models.Entity, error)
	update  func(ctx context.Context, id, currentUser string, req models.UpdateRequest) (*models.Entity, error)
	toggle  func(ctx context.Context, id, currentUser string) (*models.Entity, error)
	share   func(ctx context.Context, id, currentUser, target string) (*models.Entity, error)
	unshare func(ctx context.Context, id, currentUser, target string) (*models.Entity, error)
	remove  func(ctx context.Context, id, currentUser string) error
	list    func(ctx context.Context, pred store.Predicate) ([]models.Entity, error)
}

func (m *mockEntityStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockEntityStore) Create(ctx context.Context, currentUser string, req models.CreateRequest) (*models.Entity, error) {
	m.record("Create")
	return m.create(ctx, currentUser, req)
}

func (m *mockEntityStore) Get(ctx context.Context, id, currentUser string) (*models.Entity, error) {
	m.record("Get")
	return m.get(ctx, id, currentUser)
}

func (m *mockEntityStore) Update(ctx context.Context, id, currentUser string, req models.UpdateRequest) (*models.Entity, error) {
	m.record("Update")
	return m.update(ctx, id, currentUser, req)
}

func (m *mockEntityStore) ToggleCompletion(ctx context.Context, id, currentUser string) (*models.Entity, error) {
	m.record("ToggleCompletion")
	return m.toggle(ctx, id, currentUser)
}

func (m *mockEntityStore) Share(ctx context.Context, id, currentUser, target string) (*models.Entity, error) {
	m.record("Share")
	return m.share(ctx, id, currentUser, target)
}

func (m *mockEntityStore) Unshare(ctx context.Context, id, currentUser, target string) (*models.Entity, error) {
	m.record("Unshare")
	return m.unshare(ctx, id, currentUser, target)
}

func (m *mockEntityStore) Remove(ctx context.Context, id, currentUser string) error {
	m.record("Remove")
	return m.remove(ctx, id, currentUser)
}

func (m *mockEntityStore) List(ctx context.Context, pred store.Predicate) ([]models.Entity, error) {
	m.record("List")
	return m.list(ctx, pred)
}

// mockAuditor records audit calls.
type mockAuditor struct {
	mu    sync.Mutex
	calls []models.AuditEntry

	err error
}

func (m *mockAuditor) RecordAudit(ctx context.Context, entry models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, entry)
	return m.err
}

func (m *mockAuditor) getCalls() []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]models.AuditEntry, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// mockAuditEnqueuer records enqueued jobs.
type mockAuditEnqueuer struct {
	mu   sync.Mutex
	jobs []*AuditJob
}

func (m *mockAuditEnqueuer) Enqueue(job *AuditJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

func (m *mockAuditEnqueuer) getJobs() []*AuditJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*AuditJob, len(m.jobs))
	copy(cp, m.jobs)
	return cp
}

type sentNotice struct {
	user   string
	notice Notice
}

// mockNoticeSink records delivered notices.
type mockNoticeSink struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (m *mockNoticeSink) Notify(user string, n Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotice{user: user, notice: n})
}

func (m *mockNoticeSink) forUser(user string) []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Notice

	for _, s := range m.sent {
		if s.user == user {
			out = append(out, s.notice)
		}
	}

	return out
}
