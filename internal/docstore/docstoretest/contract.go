// Package docstoretest holds the behavioural test suite every docstore
// backend must pass.
package docstoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) docstore.Backend

// Run executes the contract suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b docstore.Backend)
	}{
		{"InsertGet", testInsertGet},
		{"UpdateFields", testUpdateFields},
		{"ArrayOps", testArrayOps},
		{"Delete", testDelete},
		{"Query", testQuery},
		{"ConcurrentUnion", testConcurrentUnion},
		{"Subscribe", testSubscribe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			defer b.Close()

			tt.fn(t, b)
		})
	}
}

func ctx(t *testing.T) context.Context {
	t.Helper()

	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	return c
}

func mustInsert(t *testing.T, b docstore.Backend, coll string, fields map[string]any) string {
	t.Helper()

	id, err := b.Insert(ctx(t), coll, fields)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if id == "" {
		t.Fatal("Insert returned empty id")
	}

	return id
}

func mustGet(t *testing.T, b docstore.Backend, coll, id string) map[string]any {
	t.Helper()

	doc, err := b.Get(ctx(t), coll, id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}

	if doc.ID != id {
		t.Fatalf("Get returned id %q, want %q", doc.ID, id)
	}

	return doc.Fields
}

func testInsertGet(t *testing.T, b docstore.Backend) {
	id := mustInsert(t, b, "shared_notes", map[string]any{
		"title":      "Groceries",
		"owner":      "alice",
		"sharedWith": []string{},
		"createdAt":  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"isLocked":   false,
	})

	f := mustGet(t, b, "shared_notes", id)

	if f["title"] != "Groceries" || f["owner"] != "alice" || f["isLocked"] != false {
		t.Errorf("unexpected fields: %#v", f)
	}

	if f["createdAt"] != "2024-01-02T03:04:05Z" {
		t.Errorf("createdAt = %#v, want RFC 3339 string", f["createdAt"])
	}

	if arr, ok := f["sharedWith"].([]any); !ok || len(arr) != 0 {
		t.Errorf("sharedWith = %#v, want empty array", f["sharedWith"])
	}

	if _, err := b.Get(ctx(t), "shared_notes", "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func testUpdateFields(t *testing.T, b docstore.Backend) {
	id := mustInsert(t, b, "shared_tasks", map[string]any{"title": "a", "description": "d", "completed": false})

	err := b.UpdateFields(ctx(t), "shared_tasks", id, map[string]any{
		"title":       "b",
		"description": docstore.DeleteField{},
		"completed":   true,
	})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	f := mustGet(t, b, "shared_tasks", id)
	if f["title"] != "b" || f["completed"] != true {
		t.Errorf("unexpected fields after update: %#v", f)
	}

	if _, ok := f["description"]; ok {
		t.Error("description should have been deleted")
	}

	if err := b.UpdateFields(ctx(t), "shared_tasks", "missing", map[string]any{"title": "x"}); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("UpdateFields(missing) error = %v, want ErrNotFound", err)
	}
}

func testArrayOps(t *testing.T, b docstore.Backend) {
	id := mustInsert(t, b, "shared_notes", map[string]any{"sharedWith": []string{"bob"}})

	if err := b.UpdateFields(ctx(t), "shared_notes", id, map[string]any{"sharedWith": docstore.Union("bob", "carol")}); err != nil {
		t.Fatalf("union: %v", err)
	}

	f := mustGet(t, b, "shared_notes", id)
	if fmt.Sprint(f["sharedWith"]) != "[bob carol]" {
		t.Errorf("after union sharedWith = %v", f["sharedWith"])
	}

	if err := b.UpdateFields(ctx(t), "shared_notes", id, map[string]any{"sharedWith": docstore.Remove("bob", "dave")}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	f = mustGet(t, b, "shared_notes", id)
	if fmt.Sprint(f["sharedWith"]) != "[carol]" {
		t.Errorf("after remove sharedWith = %v", f["sharedWith"])
	}
}

func testDelete(t *testing.T, b docstore.Backend) {
	id := mustInsert(t, b, "checklist_items", map[string]any{"title": "x"})

	if err := b.Delete(ctx(t), "checklist_items", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := b.Get(ctx(t), "checklist_items", id); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}

	if err := b.Delete(ctx(t), "checklist_items", id); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func testQuery(t *testing.T, b docstore.Backend) {
	mustInsert(t, b, "shared_notes", map[string]any{"owner": "alice", "sharedWith": []string{"bob"}})
	mustInsert(t, b, "shared_notes", map[string]any{"owner": "alice", "sharedWith": []string{}})
	mustInsert(t, b, "shared_notes", map[string]any{"owner": "bob", "sharedWith": []string{"alice"}})
	mustInsert(t, b, "shared_tasks", map[string]any{"owner": "alice"})

	owned, err := b.Query(ctx(t), "shared_notes", docstore.Equals("owner", "alice"))
	if err != nil {
		t.Fatalf("Query owner: %v", err)
	}

	if len(owned) != 2 {
		t.Errorf("owned by alice = %d, want 2", len(owned))
	}

	for i := 1; i < len(owned); i++ {
		if owned[i-1].ID > owned[i].ID {
			t.Error("query results not ordered by id")
		}
	}

	shared, err := b.Query(ctx(t), "shared_notes", docstore.ArrayContains("sharedWith", "bob"))
	if err != nil {
		t.Fatalf("Query sharedWith: %v", err)
	}

	if len(shared) != 1 || shared[0].Fields["owner"] != "alice" {
		t.Errorf("shared with bob = %#v", shared)
	}

	none, err := b.Query(ctx(t), "shared_notes", docstore.Equals("owner", "nobody"))
	if err != nil {
		t.Fatalf("Query none: %v", err)
	}

	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", none)
	}
}

func testConcurrentUnion(t *testing.T, b docstore.Backend) {
	id := mustInsert(t, b, "shared_notes", map[string]any{"changeHistory": []any{}})

	const writers = 8

	var wg sync.WaitGroup

	errs := make(chan error, writers)

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errs <- b.UpdateFields(context.Background(), "shared_notes", id, map[string]any{
				"changeHistory": docstore.Union(map[string]any{"id": fmt.Sprintf("c%d", i)}),
			})
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent union: %v", err)
		}
	}

	f := mustGet(t, b, "shared_notes", id)
	if arr, _ := f["changeHistory"].([]any); len(arr) != writers {
		t.Errorf("changeHistory has %d entries, want %d", len(arr), writers)
	}
}

func testSubscribe(t *testing.T, b docstore.Backend) {
	ch := make(chan []docstore.Document, 16)

	unsub, err := b.Subscribe("shared_notes", docstore.ArrayContains("sharedWith", "bob"), func(docs []docstore.Document, err error) {
		if err == nil {
			ch <- docs
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	waitFor := func(n int) {
		t.Helper()

		deadline := time.After(5 * time.Second)

		for {
			select {
			case docs := <-ch:
				if len(docs) == n {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %d documents", n)
			}
		}
	}

	waitFor(0)

	id := mustInsert(t, b, "shared_notes", map[string]any{"owner": "alice", "sharedWith": []string{"bob"}})
	waitFor(1)

	if err := b.UpdateFields(ctx(t), "shared_notes", id, map[string]any{"sharedWith": docstore.Remove("bob")}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	waitFor(0)

	unsub()
	unsub()
}
