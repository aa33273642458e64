// Package livesync keeps a merged, ordered view of the entities a user owns
// and the entities shared with them by running two live queries side by side.
package livesync

import (
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/store"
)

// Source opens live queries over one entity kind.
type Source interface {
	Kind() models.Kind
	Subscribe(pred store.Predicate, fn func([]models.Entity, error)) (docstore.Unsubscribe, error)
}

// PublishFunc receives every recomputed merged list. It is called with the
// synchronizer's lock held and must not call back into the synchronizer.
type PublishFunc func(merged []models.Entity)

// Synchronizer merges the owned and shared-with-me live queries for one user.
type Synchronizer struct {
	src     Source
	user    string
	log     *logrus.Logger
	publish PublishFunc

	mu         sync.Mutex
	owned      []models.Entity
	shared     []models.Entity
	ownedSeen  bool
	sharedSeen bool
	merged     []models.Entity
	unsubs     []docstore.Unsubscribe
	closed     bool
}

// New creates a synchronizer for user. Call Start to open the queries.
func New(src Source, user string, log *logrus.Logger, publish PublishFunc) *Synchronizer {
	return &Synchronizer{
		src:     src,
		user:    user,
		log:     log,
		publish: publish,
		merged:  []models.Entity{},
	}
}

// Start opens both live queries. If the second fails the first is closed.
func (s *Synchronizer) Start() error {
	if s.user == "" {
		return fmt.Errorf("starting %s sync: %w", s.src.Kind().Label(), models.ErrUnauthenticated)
	}

	ownedUnsub, err := s.src.Subscribe(store.OwnedBy(s.user), func(list []models.Entity, err error) {
		s.apply(false, list, err)
	})
	if err != nil {
		return fmt.Errorf("subscribing to owned %ss: %w", s.src.Kind().Label(), err)
	}

	sharedUnsub, err := s.src.Subscribe(store.SharedWith(s.user), func(list []models.Entity, err error) {
		s.apply(true, list, err)
	})
	if err != nil {
		ownedUnsub()
		return fmt.Errorf("subscribing to shared %ss: %w", s.src.Kind().Label(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		ownedUnsub()
		sharedUnsub()

		return nil
	}

	s.unsubs = []docstore.Unsubscribe{ownedUnsub, sharedUnsub}

	return nil
}

func (s *Synchronizer) apply(shared bool, list []models.Entity, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind":   s.src.Kind(),
			"user":   s.user,
			"shared": shared,
		}).Warn("live query failed, keeping previous snapshot")

		return
	}

	if shared {
		s.shared, s.sharedSeen = list, true
	} else {
		s.owned, s.ownedSeen = list, true
	}

	s.merged = Merge(s.owned, s.shared)

	if s.publish != nil {
		s.publish(models.CloneEntities(s.merged))
	}
}

// Snapshot returns a copy of the current merged list.
func (s *Synchronizer) Snapshot() []models.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.CloneEntities(s.merged)
}

// Ready reports whether both queries have delivered at least once.
func (s *Synchronizer) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ownedSeen && s.sharedSeen
}

// Close releases both queries. It is idempotent and no publish happens after
// it returns.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// Merge concatenates owned then shared, keeps the first occurrence of each id
// and orders the result by updatedAt descending. Ties keep merge order.
func Merge(owned, shared []models.Entity) []models.Entity {
	seen := make(map[string]struct{}, len(owned)+len(shared))
	out := make([]models.Entity, 0, len(owned)+len(shared))

	for _, list := range [][]models.Entity{owned, shared} {
		for _, e := range list {
			if _, dup := seen[e.ID]; dup {
				continue
			}

			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(a, b models.Entity) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return out
}
