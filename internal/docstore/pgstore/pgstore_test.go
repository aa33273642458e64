package pgstore_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/db"
	"github.com/ernanint/notas-de-vidro/internal/dbpool"
	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/docstore/docstoretest"
	"github.com/ernanint/notas-de-vidro/internal/docstore/pgstore"
)

// TestContract runs against a real database when TEST_DATABASE_URL is set.
// The documents table is truncated before each case.
func TestContract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, url, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	if err := db.RunPostgresMigrations(ctx, pool, log); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	docstoretest.Run(t, func(t *testing.T) docstore.Backend {
		if _, err := pool.Exec(ctx, "TRUNCATE documents"); err != nil {
			t.Fatalf("truncate: %v", err)
		}

		return pgstore.New(pool, log)
	})
}
