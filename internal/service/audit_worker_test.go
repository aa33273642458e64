package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// runWorker starts aw and returns a stop func that cancels it and waits for
// the drain to finish.
func runWorker(t *testing.T, aw *AuditWorker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		aw.Run(ctx)
		close(done)
	}()

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func TestAuditWorker_WritesEntry(t *testing.T) {
	mutatedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		job    AuditJob
		wantAt time.Time
	}{
		{
			name:   "share keeps mutation time",
			job:    AuditJob{Action: "task.share", Kind: models.KindTask, EntityID: "t1", Actor: "alice", Detail: map[string]any{"target": "bob"}, At: mutatedAt},
			wantAt: mutatedAt,
		},
		{
			name:   "missing time is stamped on enqueue",
			job:    AuditJob{Action: "note.create", Kind: models.KindNote, EntityID: "n1", Actor: "alice"},
			wantAt: mutatedAt.Add(time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := &mockAuditor{}
			aw := NewAuditWorker(auditor, quietLog(), 10)
			aw.now = func() time.Time { return mutatedAt.Add(time.Hour) }

			job := tt.job
			aw.Enqueue(&job)
			runWorker(t, aw)()

			calls := auditor.getCalls()
			if len(calls) != 1 {
				t.Fatalf("expected 1 audit call, got %d", len(calls))
			}

			got := calls[0]
			if got.Action != tt.job.Action || got.EntityKind != tt.job.Kind || got.EntityID != tt.job.EntityID || got.Actor != "alice" {
				t.Errorf("entry = %+v", got)
			}
			if !got.CreatedAt.Equal(tt.wantAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, tt.wantAt)
			}
		})
	}
}

func TestAuditWorker_FullQueueDoesNotBlockMutations(t *testing.T) {
	aw := NewAuditWorker(&mockAuditor{}, quietLog(), 2)

	aw.Enqueue(&AuditJob{Action: "note.create"})
	aw.Enqueue(&AuditJob{Action: "note.update"})

	done := make(chan struct{})
	go func() {
		aw.Enqueue(&AuditJob{Action: "note.delete"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	if len(aw.jobs) != 2 {
		t.Errorf("queue len = %d, want 2", len(aw.jobs))
	}
}

func TestAuditWorker_DrainsOnShutdown(t *testing.T) {
	auditor := &mockAuditor{}
	aw := NewAuditWorker(auditor, quietLog(), 100)

	ids := []string{"c1", "c2", "c3", "c4", "c5"}
	for _, id := range ids {
		aw.Enqueue(&AuditJob{Action: "checklist_item.toggle", Kind: models.KindChecklistItem, EntityID: id})
	}

	runWorker(t, aw)()

	calls := auditor.getCalls()
	if len(calls) != len(ids) {
		t.Fatalf("expected %d drained entries, got %d", len(ids), len(calls))
	}
	for i, c := range calls {
		if c.EntityID != ids[i] {
			t.Errorf("entry %d = %q, want %q (queue order)", i, c.EntityID, ids[i])
		}
	}
}

func TestAuditWorker_RecordFailureIsSwallowed(t *testing.T) {
	auditor := &mockAuditor{err: errors.New("disk full")}
	aw := NewAuditWorker(auditor, quietLog(), 4)

	aw.Enqueue(&AuditJob{Action: "task.update", EntityID: "t1"})
	aw.Enqueue(&AuditJob{Action: "task.update", EntityID: "t2"})
	runWorker(t, aw)()

	if n := len(auditor.getCalls()); n != 2 {
		t.Errorf("expected both entries attempted, got %d", n)
	}
}
