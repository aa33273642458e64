// Package memstore is an in-process docstore backend for tests and the
// memory storage mode. Documents are held as encoded JSON so readers never
// share state with writers.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
)

// Store is an in-memory docstore.Backend.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	fail        error

	broker *docstore.Broker
}

// New returns an empty in-memory store.
func New(log *logrus.Logger) *Store {
	s := &Store{collections: make(map[string]map[string][]byte)}
	s.broker = docstore.NewBroker(s.Query, log)

	return s
}

// Fail makes every subsequent operation return err until Fail(nil) is
// called. Live queries are re-evaluated so subscribers observe the outage.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()

	s.broker.TouchAll()
}

func (s *Store) checkFail() error {
	if s.fail != nil {
		return fmt.Errorf("memstore: %w", s.fail)
	}

	return nil
}

// Insert stores fields under a new random id.
func (s *Store) Insert(_ context.Context, collection string, fields map[string]any) (string, error) {
	if err := docstore.ValidateCollection(collection); err != nil {
		return "", err
	}

	doc, err := docstore.ApplyPatch(nil, fields)
	if err != nil {
		return "", fmt.Errorf("building document: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	id := uuid.NewString()

	s.mu.Lock()
	if err := s.checkFail(); err != nil {
		s.mu.Unlock()
		return "", err
	}

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.collections[collection] = coll
	}

	coll[id] = data
	s.mu.Unlock()

	s.broker.Touch(collection)

	return id, nil
}

// UpdateFields applies patch to the document under the write lock.
func (s *Store) UpdateFields(_ context.Context, collection, id string, patch map[string]any) error {
	s.mu.Lock()

	if err := s.checkFail(); err != nil {
		s.mu.Unlock()
		return err
	}

	data, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("decoding document %s: %w", id, err)
	}

	updated, err := docstore.ApplyPatch(doc, patch)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("patching document %s: %w", id, err)
	}

	encoded, err := json.Marshal(updated)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encoding document %s: %w", id, err)
	}

	s.collections[collection][id] = encoded
	s.mu.Unlock()

	s.broker.Touch(collection)

	return nil
}

// Delete removes the document.
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()

	if err := s.checkFail(); err != nil {
		s.mu.Unlock()
		return err
	}

	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}

	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.broker.Touch(collection)

	return nil
}

// Get returns a single document.
func (s *Store) Get(_ context.Context, collection, id string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkFail(); err != nil {
		return nil, err
	}

	data, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}

	return decode(id, data)
}

// Query returns all documents matching filter, ordered by id.
func (s *Store) Query(_ context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkFail(); err != nil {
		return nil, err
	}

	out := []docstore.Document{}

	for id, data := range s.collections[collection] {
		doc, err := decode(id, data)
		if err != nil {
			return nil, err
		}

		if filter.Match(doc.Fields) {
			out = append(out, *doc)
		}
	}

	slices.SortFunc(out, func(a, b docstore.Document) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

// Subscribe starts a live query.
func (s *Store) Subscribe(collection string, filter docstore.Filter, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	return s.broker.Subscribe(collection, filter, fn)
}

// Close stops all live queries.
func (s *Store) Close() error {
	s.broker.Close()
	return nil
}

func decode(id string, data []byte) (*docstore.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}

	return &docstore.Document{ID: id, Fields: fields}, nil
}
