package store_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestEntityStore_SharingScenario(t *testing.T) {
	base, _, clock := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	note, err := notes.Create(ctx, "alice", models.CreateRequest{Title: "Groceries", Content: "milk"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if note.Owner != "alice" || len(note.Collaborators) != 0 {
		t.Fatalf("unexpected owner/collaborators: %q %v", note.Owner, note.Collaborators)
	}

	if len(note.ChangeHistory) != 1 || note.ChangeHistory[0].Kind != models.ChangeCreated {
		t.Fatalf("expected a single created record, got %+v", note.ChangeHistory)
	}

	if !note.CreatedAt.Equal(note.UpdatedAt) {
		t.Errorf("createdAt %v != updatedAt %v on create", note.CreatedAt, note.UpdatedAt)
	}

	clock.Advance(time.Minute)

	note, err = notes.Share(ctx, note.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("Share: %v", err)
	}

	if !note.HasCollaborator("bob") {
		t.Fatalf("bob not in collaborators: %v", note.Collaborators)
	}

	if got := note.ChangeHistory[0]; got.Action() != "shared with bob" || got.ActorID != "alice" || got.ActorDisplayName != "Alice" {
		t.Errorf("newest record = %+v", got)
	}

	clock.Advance(time.Minute)

	note, err = notes.Update(ctx, note.ID, "bob", models.UpdateRequest{Content: ptr("milk, eggs")})
	if err != nil {
		t.Fatalf("collaborator Update: %v", err)
	}

	if note.Content != "milk, eggs" {
		t.Errorf("content = %q", note.Content)
	}

	if got := note.ChangeHistory[0]; got.ActorID != "bob" || got.Action() != "modified content" {
		t.Errorf("newest record = %+v (%s)", got, got.Action())
	}

	_, err = notes.Share(ctx, note.ID, "bob", "carol")
	assertCategory(t, err, models.CategoryPermissionDenied)

	err = notes.Remove(ctx, note.ID, "bob")
	assertCategory(t, err, models.CategoryPermissionDenied)

	note, err = notes.Unshare(ctx, note.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("Unshare: %v", err)
	}

	if note.HasCollaborator("bob") || note.ChangeHistory[0].Action() != "removed bob" {
		t.Errorf("unexpected state after unshare: %v %q", note.Collaborators, note.ChangeHistory[0].Action())
	}

	_, err = notes.Get(ctx, note.ID, "bob")
	assertCategory(t, err, models.CategoryPermissionDenied)

	if want := 4; len(note.ChangeHistory) != want {
		t.Errorf("history length = %d, want %d", len(note.ChangeHistory), want)
	}

	for i := 1; i < len(note.ChangeHistory); i++ {
		if note.ChangeHistory[i-1].OccurredAt.Before(note.ChangeHistory[i].OccurredAt) {
			t.Fatal("history is not newest first")
		}
	}

	if err := notes.Remove(ctx, note.ID, "alice"); err != nil {
		t.Fatalf("owner Remove: %v", err)
	}

	_, err = notes.Get(ctx, note.ID, "alice")
	assertCategory(t, err, models.CategoryNotFound)
}

func TestEntityStore_CreateDefaults(t *testing.T) {
	base, backend, _ := setupTestBase(t)
	ctx := context.Background()

	task, err := store.NewEntityStore(base, models.KindTask).Create(ctx, "alice", models.CreateRequest{})
	if err != nil {
		t.Fatalf("Create task: %v", err)
	}

	if task.Title != models.KindTask.DefaultTitle() || task.Priority != models.PriorityMedium || task.Completed {
		t.Errorf("unexpected task defaults: %+v", task)
	}

	item, err := store.NewEntityStore(base, models.KindChecklistItem).Create(ctx, "alice", models.CreateRequest{})
	if err != nil {
		t.Fatalf("Create item: %v", err)
	}

	if item.Title != "New item" {
		t.Errorf("item title = %q", item.Title)
	}

	doc, err := backend.Get(ctx, "shared_tasks", task.ID)
	if err != nil {
		t.Fatalf("backend Get: %v", err)
	}

	for _, field := range []string{"description", "dueDate", "backgroundColor", "backgroundImage"} {
		if _, ok := doc.Fields[field]; ok {
			t.Errorf("empty optional field %q was persisted", field)
		}
	}

	if doc.Fields["kind"] != "task" || doc.Fields["completed"] != false {
		t.Errorf("unexpected stored fields: %#v", doc.Fields)
	}
}

func TestEntityStore_Unauthenticated(t *testing.T) {
	base, _, _ := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)

	_, err := notes.Create(context.Background(), "", models.CreateRequest{Title: "x"})
	assertCategory(t, err, models.CategoryUnauthenticated)

	_, err = notes.Subscribe(store.OwnedBy(""), func([]models.Entity, error) {})
	assertCategory(t, err, models.CategoryUnauthenticated)
}

func TestEntityStore_ShareErrors(t *testing.T) {
	base, _, _ := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	note, err := notes.Create(ctx, "alice", models.CreateRequest{Title: "n"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = notes.Share(ctx, note.ID, "alice", "alice")
	assertCategory(t, err, models.CategoryInvalidTarget)

	_, err = notes.Share(ctx, note.ID, "alice", "")
	assertCategory(t, err, models.CategoryInvalidTarget)

	if _, err := notes.Share(ctx, note.ID, "alice", "bob"); err != nil {
		t.Fatalf("Share: %v", err)
	}

	_, err = notes.Share(ctx, note.ID, "alice", "bob")
	assertCategory(t, err, models.CategoryAlreadyShared)

	_, err = notes.Share(ctx, "missing", "alice", "bob")
	assertCategory(t, err, models.CategoryNotFound)
}

func TestEntityStore_UnshareNonCollaboratorIsNoop(t *testing.T) {
	base, _, clock := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	note, err := notes.Create(ctx, "alice", models.CreateRequest{Title: "n"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(time.Hour)

	after, err := notes.Unshare(ctx, note.ID, "alice", "carol")
	if err != nil {
		t.Fatalf("Unshare: %v", err)
	}

	if len(after.ChangeHistory) != 1 || !after.UpdatedAt.Equal(note.UpdatedAt) {
		t.Errorf("no-op unshare changed the entity: history=%d updatedAt=%v", len(after.ChangeHistory), after.UpdatedAt)
	}

	if after.LastChange != nil {
		t.Errorf("no-op unshare reported change %+v", after.LastChange)
	}

	_, err = notes.Unshare(ctx, note.ID, "bob", "carol")
	assertCategory(t, err, models.CategoryPermissionDenied)
}

func TestEntityStore_ToggleCompletion(t *testing.T) {
	base, _, _ := setupTestBase(t)
	ctx := context.Background()
	tasks := store.NewEntityStore(base, models.KindTask)

	task, err := tasks.Create(ctx, "alice", models.CreateRequest{Title: "ship"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	task, err = tasks.ToggleCompletion(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	if !task.Completed || task.ChangeHistory[0].Action() != "marked complete" {
		t.Errorf("after first toggle: completed=%v action=%q", task.Completed, task.ChangeHistory[0].Action())
	}

	task, err = tasks.ToggleCompletion(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	if task.Completed || task.ChangeHistory[0].Action() != "reopened" {
		t.Errorf("after second toggle: completed=%v action=%q", task.Completed, task.ChangeHistory[0].Action())
	}

	_, err = tasks.ToggleCompletion(ctx, task.ID, "carol")
	assertCategory(t, err, models.CategoryPermissionDenied)

	notes := store.NewEntityStore(base, models.KindNote)
	_, err = notes.ToggleCompletion(ctx, "any", "alice")
	assertCategory(t, err, models.CategoryUnsupported)
}

func TestEntityStore_UpdateNormalization(t *testing.T) {
	base, backend, _ := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	image := "data:image/png;base64," + strings.Repeat("A", 256<<10)

	note, err := notes.Create(ctx, "alice", models.CreateRequest{
		Title:           "locked",
		Content:         "secret",
		Password:        "pw",
		BackgroundImage: image,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !note.IsLocked || note.BackgroundImage != image {
		t.Fatalf("lock or image not stored: locked=%v imageLen=%d", note.IsLocked, len(note.BackgroundImage))
	}

	note, err = notes.Update(ctx, note.ID, "alice", models.UpdateRequest{
		Content:  ptr(""),
		Password: ptr(""),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if note.IsLocked || note.Password != "" || note.Content != "" {
		t.Errorf("clear did not apply: %+v", note)
	}

	doc, err := backend.Get(ctx, "shared_notes", note.ID)
	if err != nil {
		t.Fatalf("backend Get: %v", err)
	}

	for _, field := range []string{"content", "password"} {
		if _, ok := doc.Fields[field]; ok {
			t.Errorf("cleared field %q still stored", field)
		}
	}

	if doc.Fields["backgroundImage"] != image {
		t.Error("background image was not preserved")
	}

	if got := note.ChangeHistory[0].Fields; len(got) != 2 || got[0] != "content" || got[1] != "password" {
		t.Errorf("changed fields = %v", got)
	}
}

func TestEntityStore_UpdateValidation(t *testing.T) {
	base, _, _ := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	note, err := notes.Create(ctx, "alice", models.CreateRequest{Title: "n"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = notes.Update(ctx, note.ID, "alice", models.UpdateRequest{Title: ptr("")})
	assertCategory(t, err, models.CategoryValidation)

	_, err = notes.Update(ctx, note.ID, "carol", models.UpdateRequest{Title: ptr("hijack")})
	assertCategory(t, err, models.CategoryPermissionDenied)

	updated, err := notes.Update(ctx, note.ID, "alice", models.UpdateRequest{Title: ptr("renamed"), Reason: "fixed typo"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := updated.ChangeHistory[0]; got.Action() != "fixed typo" || got.Fields[0] != "title" {
		t.Errorf("reason override not applied: %+v", got)
	}
}

func TestEntityStore_UpdatedAtNeverGoesBackwards(t *testing.T) {
	base, _, clock := setupTestBase(t)
	tasks := store.NewEntityStore(base, models.KindTask)
	ctx := context.Background()

	task, err := tasks.Create(ctx, "alice", models.CreateRequest{Title: "t"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Set(task.CreatedAt.Add(-time.Hour))

	task2, err := tasks.Update(ctx, task.ID, "alice", models.UpdateRequest{Priority: ptr(models.PriorityHigh)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if task2.UpdatedAt.Before(task.UpdatedAt) || task2.UpdatedAt.Before(task2.CreatedAt) {
		t.Errorf("updatedAt went backwards: %v < %v", task2.UpdatedAt, task.UpdatedAt)
	}
}

func TestEntityStore_BackendUnavailable(t *testing.T) {
	base, backend, _ := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	note, err := notes.Create(ctx, "alice", models.CreateRequest{Title: "before"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	backend.Fail(errors.New("network down"))

	_, err = notes.Update(ctx, note.ID, "alice", models.UpdateRequest{Title: ptr("after")})
	assertCategory(t, err, models.CategoryBackendUnavailable)

	if !models.CategoryOf(err).Retryable() {
		t.Error("backend unavailability should be retryable")
	}

	backend.Fail(nil)

	got, err := notes.Get(ctx, note.ID, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.Title != "before" || len(got.ChangeHistory) != 1 {
		t.Errorf("failed mutation changed state: %+v", got)
	}
}

func TestEntityStore_HistoryGrowsByOnePerMutation(t *testing.T) {
	base, _, clock := setupTestBase(t)
	items := store.NewEntityStore(base, models.KindChecklistItem)
	ctx := context.Background()

	item, err := items.Create(ctx, "alice", models.CreateRequest{Title: "eggs"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	steps := []func() (*models.Entity, error){
		func() (*models.Entity, error) { return items.Share(ctx, item.ID, "alice", "bob") },
		func() (*models.Entity, error) { return items.ToggleCompletion(ctx, item.ID, "bob") },
		func() (*models.Entity, error) {
			return items.Update(ctx, item.ID, "bob", models.UpdateRequest{Title: ptr("brown eggs")})
		},
		func() (*models.Entity, error) { return items.ToggleCompletion(ctx, item.ID, "alice") },
		func() (*models.Entity, error) { return items.Unshare(ctx, item.ID, "alice", "bob") },
	}

	for i, step := range steps {
		clock.Advance(time.Second)

		got, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		if want := i + 2; len(got.ChangeHistory) != want {
			t.Fatalf("step %d: history length = %d, want %d", i, len(got.ChangeHistory), want)
		}
	}
}

func TestEntityStore_Subscribe(t *testing.T) {
	base, _, _ := setupTestBase(t)
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	shared := make(chan []models.Entity, 16)

	unsub, err := notes.Subscribe(store.SharedWith("bob"), func(list []models.Entity, err error) {
		if err == nil {
			shared <- list
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	waitLen := func(n int) []models.Entity {
		t.Helper()

		deadline := time.After(2 * time.Second)

		for {
			select {
			case list := <-shared:
				if len(list) == n {
					return list
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %d entities", n)
				return nil
			}
		}
	}

	waitLen(0)

	note, err := notes.Create(ctx, "alice", models.CreateRequest{Title: "for bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := notes.Share(ctx, note.ID, "alice", "bob"); err != nil {
		t.Fatalf("Share: %v", err)
	}

	list := waitLen(1)
	got := list[0]

	if got.ID != note.ID || got.Kind != models.KindNote {
		t.Errorf("unexpected entity in shared snapshot: %+v", got)
	}

	if got.Title != "for bob" || got.Owner != "alice" || !got.HasCollaborator("bob") {
		t.Errorf("snapshot title/owner/collaborators = %q %q %v", got.Title, got.Owner, got.Collaborators)
	}

	if len(got.ChangeHistory) != 2 || got.ChangeHistory[0].Action() != "shared with bob" || got.ChangeHistory[1].Kind != models.ChangeCreated {
		t.Errorf("snapshot history = %+v", got.ChangeHistory)
	}

	if !got.UpdatedAt.Equal(got.ChangeHistory[0].OccurredAt) {
		t.Errorf("snapshot updatedAt %v != newest record %v", got.UpdatedAt, got.ChangeHistory[0].OccurredAt)
	}

	owned, err := notes.List(ctx, store.OwnedBy("alice"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(owned) != 1 {
		t.Errorf("owned by alice = %d, want 1", len(owned))
	}
}

func TestEntityStore_ConcurrentWritersKeepHistoryOrdered(t *testing.T) {
	base, _, _ := setupTestBase(t)
	base.Clock = nil
	notes := store.NewEntityStore(base, models.KindNote)
	ctx := context.Background()

	note, err := notes.Create(ctx, "alice", models.CreateRequest{Title: "shared"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := notes.Share(ctx, note.ID, "alice", "bob"); err != nil {
		t.Fatalf("Share: %v", err)
	}

	const perWriter = 50

	var g errgroup.Group

	for _, user := range []string{"alice", "bob"} {
		g.Go(func() error {
			for i := range perWriter {
				e, err := notes.Update(ctx, note.ID, user, models.UpdateRequest{Content: ptr(fmt.Sprintf("%s %d", user, i))})
				if err != nil {
					return err
				}

				if e.LastChange == nil || e.LastChange.ActorID != user {
					return fmt.Errorf("update by %s returned change %+v", user, e.LastChange)
				}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := notes.Get(ctx, note.ID, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if want := 2*perWriter + 2; len(got.ChangeHistory) != want {
		t.Fatalf("history length = %d, want %d", len(got.ChangeHistory), want)
	}

	if !got.UpdatedAt.Equal(got.ChangeHistory[0].OccurredAt) {
		t.Errorf("updatedAt %v != newest record %v", got.UpdatedAt, got.ChangeHistory[0].OccurredAt)
	}

	seen := map[string]bool{}

	for i, rec := range got.ChangeHistory {
		if seen[rec.ID] {
			t.Fatalf("duplicate change id %s", rec.ID)
		}

		seen[rec.ID] = true

		if i > 0 && got.ChangeHistory[i-1].OccurredAt.Before(rec.OccurredAt) {
			t.Fatalf("history not newest first at %d: %v before %v", i, got.ChangeHistory[i-1].OccurredAt, rec.OccurredAt)
		}
	}
}

func TestEntityStore_TaskFields(t *testing.T) {
	base, _, clock := setupTestBase(t)
	tasks := store.NewEntityStore(base, models.KindTask)
	ctx := context.Background()

	snapshots := make(chan []models.Entity, 16)

	unsub, err := tasks.Subscribe(store.OwnedBy("alice"), func(list []models.Entity, err error) {
		if err == nil {
			snapshots <- list
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	// next waits for a snapshot holding the task whose newest record matches action.
	next := func(action string) models.Entity {
		t.Helper()

		deadline := time.After(2 * time.Second)

		for {
			select {
			case list := <-snapshots:
				if len(list) == 1 && list[0].ChangeHistory[0].Action() == action {
					return list[0]
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", action)
				return models.Entity{}
			}
		}
	}

	due := time.Date(2025, 7, 4, 9, 30, 0, 0, time.UTC)

	task, err := tasks.Create(ctx, "alice", models.CreateRequest{
		Title:           "file taxes",
		Description:     "federal and state",
		Priority:        models.PriorityHigh,
		DueDate:         &due,
		BackgroundColor: "#ffcc00",
		BackgroundImage: "paper.png",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	created := next("created")

	dueOf := func(e models.Entity) any {
		if e.DueDate == nil {
			return nil
		}

		return e.DueDate.UTC().Format(time.RFC3339)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"id", created.ID, task.ID},
		{"description", created.Description, "federal and state"},
		{"priority", created.Priority, models.PriorityHigh},
		{"due date", dueOf(created), due.Format(time.RFC3339)},
		{"background color", created.BackgroundColor, "#ffcc00"},
		{"background image", created.BackgroundImage, "paper.png"},
		{"completed", created.Completed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	clock.Advance(time.Minute)

	updated, err := tasks.Update(ctx, task.ID, "alice", models.UpdateRequest{Description: ptr(""), ClearDueDate: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated.LastChange == nil || updated.LastChange.ID != updated.ChangeHistory[0].ID {
		t.Errorf("LastChange = %+v, want newest record %+v", updated.LastChange, updated.ChangeHistory[0])
	}

	cleared := next("modified description, due date")

	if cleared.Description != "" || cleared.DueDate != nil {
		t.Errorf("cleared fields still set: description=%q due=%v", cleared.Description, cleared.DueDate)
	}

	if cleared.Priority != models.PriorityHigh || cleared.BackgroundColor != "#ffcc00" || cleared.BackgroundImage != "paper.png" {
		t.Errorf("untouched fields changed: %+v", cleared)
	}
}
