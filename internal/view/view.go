// Package view exposes the subset of a merged entity list that the current
// user is permitted to see and edit.
package view

import (
	"sync"

	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/permission"
)

// Filter returns the entities in list that user may edit, preserving order.
func Filter(list []models.Entity, user string) []models.Entity {
	out := make([]models.Entity, 0, len(list))

	for i := range list {
		if permission.CanEdit(&list[i], user) {
			out = append(out, list[i])
		}
	}

	return out
}

// AccessibleView holds the permission-filtered projection of a merged list
// and notifies listeners whenever it is recomputed.
type AccessibleView struct {
	mu        sync.RWMutex
	user      string
	source    []models.Entity
	current   []models.Entity
	listeners map[int]func([]models.Entity)
	nextID    int
}

// New creates an empty view for user.
func New(user string) *AccessibleView {
	return &AccessibleView{
		user:      user,
		current:   []models.Entity{},
		listeners: make(map[int]func([]models.Entity)),
	}
}

// Update replaces the source list and recomputes the view.
func (v *AccessibleView) Update(merged []models.Entity) {
	v.mu.Lock()
	v.source = models.CloneEntities(merged)
	v.recompute()
	v.mu.Unlock()

	v.notify()
}

// SetUser changes the viewing user and recomputes the view.
func (v *AccessibleView) SetUser(user string) {
	v.mu.Lock()
	v.user = user
	v.recompute()
	v.mu.Unlock()

	v.notify()
}

// User returns the viewing user.
func (v *AccessibleView) User() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.user
}

// Entities returns a copy of the current view.
func (v *AccessibleView) Entities() []models.Entity {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return models.CloneEntities(v.current)
}

// Get returns the entity with id if it is visible.
func (v *AccessibleView) Get(id string) (models.Entity, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for i := range v.current {
		if v.current[i].ID == id {
			return v.current[i].Clone(), true
		}
	}

	return models.Entity{}, false
}

// OnChange registers fn to receive every recomputed view. The returned
// function removes the listener.
func (v *AccessibleView) OnChange(fn func([]models.Entity)) (cancel func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

func (v *AccessibleView) recompute() {
	v.current = Filter(v.source, v.user)
}

func (v *AccessibleView) notify() {
	v.mu.RLock()
	snapshot := v.current
	fns := make([]func([]models.Entity), 0, len(v.listeners))

	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.RUnlock()

	for _, fn := range fns {
		fn(models.CloneEntities(snapshot))
	}
}
