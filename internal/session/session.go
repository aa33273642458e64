// Package session ties together, for one signed-in user, a synchronizer and
// an accessible view per entity kind.
package session

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/livesync"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/view"
)

// Session owns the live state for one user across the requested kinds.
type Session struct {
	user  string
	log   *logrus.Logger
	syncs map[models.Kind]*livesync.Synchronizer
	views map[models.Kind]*view.AccessibleView

	closeOnce sync.Once
}

// Open starts live queries for each source. On failure every query already
// opened is released.
func Open(user string, sources []livesync.Source, log *logrus.Logger) (*Session, error) {
	if user == "" {
		return nil, fmt.Errorf("opening session: %w", models.ErrUnauthenticated)
	}

	s := &Session{
		user:  user,
		log:   log,
		syncs: make(map[models.Kind]*livesync.Synchronizer, len(sources)),
		views: make(map[models.Kind]*view.AccessibleView, len(sources)),
	}

	for _, src := range sources {
		v := view.New(user)
		sy := livesync.New(src, user, log, v.Update)

		if err := sy.Start(); err != nil {
			s.Close()
			return nil, err
		}

		s.syncs[src.Kind()] = sy
		s.views[src.Kind()] = v
	}

	log.WithFields(logrus.Fields{"user": user, "kinds": len(sources)}).Debug("session opened")

	return s, nil
}

// User returns the session's user.
func (s *Session) User() string {
	return s.user
}

// View returns the accessible view for kind, or nil if the kind was not opened.
func (s *Session) View(kind models.Kind) *view.AccessibleView {
	return s.views[kind]
}

// Kinds returns the kinds this session watches, in display order.
func (s *Session) Kinds() []models.Kind {
	out := make([]models.Kind, 0, len(s.views))

	for _, k := range models.Kinds {
		if _, ok := s.views[k]; ok {
			out = append(out, k)
		}
	}

	return out
}

// Ready reports whether kind has received both of its initial snapshots.
func (s *Session) Ready(kind models.Kind) bool {
	sy, ok := s.syncs[kind]
	return ok && sy.Ready()
}

// Close releases every live query. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, sy := range s.syncs {
			sy.Close()
		}

		s.log.WithField("user", s.user).Debug("session closed")
	})
}
