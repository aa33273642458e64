// Package pgstore is a docstore backend on PostgreSQL. Documents live in a
// single JSONB table keyed by (collection, id). Writes are announced on the
// doc_changes channel so live queries on other instances refresh.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/db"
	"github.com/ernanint/notas-de-vidro/internal/dbpool"
	"github.com/ernanint/notas-de-vidro/internal/docstore"
)

const defaultQueryTimeout = 30 * time.Second

// Store is a PostgreSQL-backed docstore.Backend.
type Store struct {
	pool   *dbpool.Pool
	log    *logrus.Logger
	broker *docstore.Broker
}

// New creates a Store on an already-migrated pool.
func New(pool *dbpool.Pool, log *logrus.Logger) *Store {
	s := &Store{pool: pool, log: log}
	s.broker = docstore.NewBroker(s.Query, log)

	return s
}

// Broker exposes the live query broker so the notify bridge can refresh it.
func (s *Store) Broker() *docstore.Broker {
	return s.broker
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// Insert stores fields under a new random id.
func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
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

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	id := uuid.NewString()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)`,
		collection, id, data); err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}

	s.changed(collection, id, "insert")

	return id, nil
}

// UpdateFields locks the row, applies patch and writes it back in one transaction.
func (s *Store) UpdateFields(ctx context.Context, collection, id string, patch map[string]any) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op.

	var raw []byte

	err = tx.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.ErrNotFound
	}

	if err != nil {
		return fmt.Errorf("loading document %s: %w", id, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding document %s: %w", id, err)
	}

	updated, err := docstore.ApplyPatch(doc, patch)
	if err != nil {
		return fmt.Errorf("patching document %s: %w", id, err)
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE documents SET doc = $3, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, data); err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}

	s.changed(collection, id, "update")

	return nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}

	s.changed(collection, id, "delete")

	return nil
}

// Get returns a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var raw []byte

	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", id, err)
	}

	return decode(id, raw)
}

// Query returns all documents matching filter, ordered by id.
func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT id, doc FROM documents WHERE collection = $1 AND doc ->> $2::text = $3::text ORDER BY id`
	if filter.Op == docstore.OpArrayContains {
		query = `SELECT id, doc FROM documents
			WHERE collection = $1 AND jsonb_typeof(doc -> $2::text) = 'array' AND doc -> $2::text ? $3::text
			ORDER BY id`
	}

	rows, err := s.pool.Query(ctx, query, collection, filter.Field, filter.Value)
	if err != nil {
		return nil, fmt.Errorf("querying %s where %s: %w", collection, filter, err)
	}
	defer rows.Close()

	out := []docstore.Document{}

	for rows.Next() {
		var (
			id  string
			raw []byte
		)

		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		doc, err := decode(id, raw)
		if err != nil {
			return nil, err
		}

		out = append(out, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return out, nil
}

// Subscribe starts a live query.
func (s *Store) Subscribe(collection string, filter docstore.Filter, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	return s.broker.Subscribe(collection, filter, fn)
}

// Close stops live queries. The pool is owned by the caller.
func (s *Store) Close() error {
	s.broker.Close()
	return nil
}

// changed refreshes local live queries and announces the write to other
// instances (best-effort, post-commit).
func (s *Store) changed(collection, id, op string) {
	s.broker.Touch(collection)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, _ := json.Marshal(map[string]string{ //nolint:errcheck // static keys, cannot fail.
		"collection": collection,
		"id":         id,
		"op":         op,
	})
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", db.ListenChannel, string(payload)); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"collection": collection,
			"op":         op,
		}).Warn("failed to send document change notification")
	}
}

func decode(id string, raw []byte) (*docstore.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}

	return &docstore.Document{ID: id, Fields: fields}, nil
}
