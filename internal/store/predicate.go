package store

import "github.com/ernanint/notas-de-vidro/internal/docstore"

// Predicate selects the entities a live query or list returns.
type Predicate struct {
	User   string
	shared bool
}

// OwnedBy selects entities whose owner is user.
func OwnedBy(user string) Predicate {
	return Predicate{User: user}
}

// SharedWith selects entities whose collaborator set contains user.
func SharedWith(user string) Predicate {
	return Predicate{User: user, shared: true}
}

// Shared reports whether the predicate selects by collaborator set.
func (p Predicate) Shared() bool {
	return p.shared
}

func (p Predicate) filter() docstore.Filter {
	if p.shared {
		return docstore.ArrayContains(fieldSharedWith, p.User)
	}

	return docstore.Equals(fieldOwner, p.User)
}

func (p Predicate) String() string {
	if p.shared {
		return "shared with " + p.User
	}

	return "owned by " + p.User
}
