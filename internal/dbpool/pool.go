// Package dbpool owns the PostgreSQL connection pool used by the remote
// document backend and the change feed.
package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns  = 10
	statementTimeout = "30000" // ms
)

// Pool is the narrow surface of pgxpool the backend and bridge rely on.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects and pings. maxConns counts the document backend only; one
// extra connection is held by the LISTEN loop for the life of the process.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	cfg.ConnConfig.RuntimeParams["statement_timeout"] = statementTimeout
	cfg.ConnConfig.RuntimeParams["application_name"] = "notas-server"

	if maxConns < 1 {
		maxConns = defaultMaxConns
	}

	cfg.MaxConns = maxConns + 1
	cfg.MinConns = min(2, cfg.MaxConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Acquire takes a dedicated connection, used for LISTEN.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return p.pool.Acquire(ctx)
}

// Exec runs a statement that returns no rows.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

// Query runs a statement that returns rows.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// QueryRow runs a statement that returns at most one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction.
func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.pool.Begin(ctx)
}

// Ping reports whether the database is reachable and the documents table
// exists, so readiness fails until migrations have run.
func (p *Pool) Ping(ctx context.Context) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, "SELECT to_regclass('documents') IS NOT NULL").Scan(&exists); err != nil {
		return fmt.Errorf("readiness query: %w", err)
	}

	if !exists {
		return fmt.Errorf("documents table missing")
	}

	return nil
}

// Stats reports total and idle connections.
func (p *Pool) Stats() (total, idle int32) {
	s := p.pool.Stat()
	return s.TotalConns(), s.IdleConns()
}

// ConnString returns the DSN the pool was built from, for goose.
func (p *Pool) ConnString() string {
	return p.pool.Config().ConnString()
}

// Close closes every connection.
func (p *Pool) Close() {
	p.pool.Close()
}
