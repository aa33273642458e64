// Package sqlitestore is a docstore backend on an embedded SQLite file.
// Documents are stored as JSON text and filtered with SQLite's JSON functions.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/db"
	"github.com/ernanint/notas-de-vidro/internal/docstore"
)

const defaultTimeout = 30 * time.Second

// Store is a SQLite-backed docstore.Backend.
type Store struct {
	db     *sql.DB
	log    *logrus.Logger
	broker *docstore.Broker
}

// Open opens (creating if needed) the database at path and applies migrations.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, log *logrus.Logger) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// shared across queries.
	sqlDB.SetMaxOpenConns(1)

	if err := db.RunMigrations(ctx, sqlDB, goose.DialectSQLite3, log); err != nil {
		sqlDB.Close()
		return nil, err
	}

	s := &Store{db: sqlDB, log: log}
	s.broker = docstore.NewBroker(s.Query, log)

	return s, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES (?, ?, ?)`,
		collection, id, string(data))
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}

	s.broker.Touch(collection)

	return id, nil
}

// UpdateFields reads, patches and writes the document in one transaction.
func (s *Store) UpdateFields(ctx context.Context, collection, id string, patch map[string]any) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op.

	var raw string

	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.ErrNotFound
	}

	if err != nil {
		return fmt.Errorf("loading document %s: %w", id, err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
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

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET doc = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE collection = ? AND id = ?`,
		string(data), collection, id)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}

	s.broker.Touch(collection)

	return nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}

	if n == 0 {
		return docstore.ErrNotFound
	}

	s.broker.Touch(collection)

	return nil
}

// Get returns a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var raw string

	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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

	path := "$." + filter.Field

	var query string

	switch filter.Op {
	case docstore.OpArrayContains:
		query = `SELECT id, doc FROM documents
			WHERE collection = ?
			  AND json_type(doc, ?) = 'array'
			  AND EXISTS (SELECT 1 FROM json_each(doc, ?) WHERE json_each.value = ?)
			ORDER BY id`
	default:
		query = `SELECT id, doc FROM documents
			WHERE collection = ? AND json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?
			ORDER BY id`
	}

	rows, err := s.db.QueryContext(ctx, query, collection, path, path, filter.Value)
	if err != nil {
		return nil, fmt.Errorf("querying %s where %s: %w", collection, filter, err)
	}
	defer rows.Close()

	out := []docstore.Document{}

	for rows.Next() {
		var id, raw string
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

// Ping verifies the database file is readable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops live queries and closes the database.
func (s *Store) Close() error {
	s.broker.Close()
	return s.db.Close()
}

func decode(id, raw string) (*docstore.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}

	return &docstore.Document{ID: id, Fields: fields}, nil
}
