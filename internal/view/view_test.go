package view_test

import (
	"testing"

	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/view"
)

func merged() []models.Entity {
	return []models.Entity{
		{ID: "a", Owner: "alice"},
		{ID: "b", Owner: "bob", Collaborators: []string{"alice"}},
		{ID: "c", Owner: "carol", Collaborators: []string{"bob"}},
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		user string
		want []string
	}{
		{user: "alice", want: []string{"a", "b"}},
		{user: "bob", want: []string{"b", "c"}},
		{user: "dave", want: []string{}},
		{user: "", want: []string{}},
	}

	for _, tt := range tests {
		got := view.Filter(merged(), tt.user)

		if len(got) != len(tt.want) {
			t.Fatalf("Filter(%q) returned %d entities, want %d", tt.user, len(got), len(tt.want))
		}

		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("Filter(%q)[%d] = %s, want %s", tt.user, i, got[i].ID, tt.want[i])
			}
		}
	}
}

func TestAccessibleView_UpdateAndSetUser(t *testing.T) {
	v := view.New("alice")

	var calls int

	var last []models.Entity

	cancel := v.OnChange(func(list []models.Entity) {
		calls++
		last = list
	})

	v.Update(merged())

	if calls != 1 || len(last) != 2 {
		t.Fatalf("after Update: calls=%d len=%d", calls, len(last))
	}

	if _, ok := v.Get("c"); ok {
		t.Error("alice should not see c")
	}

	v.SetUser("bob")

	if got := v.Entities(); len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("bob's view = %+v", got)
	}

	if v.User() != "bob" || calls != 2 {
		t.Errorf("SetUser did not recompute and notify: user=%s calls=%d", v.User(), calls)
	}

	cancel()
	v.Update(nil)

	if calls != 2 {
		t.Error("listener called after cancel")
	}

	if got := v.Entities(); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil view, got %#v", got)
	}
}

func TestAccessibleView_ReturnsCopies(t *testing.T) {
	v := view.New("alice")
	v.Update(merged())

	got := v.Entities()
	got[0].Collaborators = append(got[0].Collaborators, "mallory")

	e, ok := v.Get("a")
	if !ok || len(e.Collaborators) != 0 {
		t.Errorf("view exposed internal state: %+v", e)
	}
}
