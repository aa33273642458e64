package db

import (
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/ernanint/notas-de-vidro/internal/db/migrations"
)

// SchemaVersion returns the number of migration files for dialect, which
// equals the schema version once migrations have run. Reported by /ready.
func SchemaVersion(dialect goose.Dialect) int {
	fsys := migrations.Postgres()
	if dialect == goose.DialectSQLite3 {
		fsys = migrations.SQLite()
	}

	matches, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return 0
	}

	return len(matches)
}
