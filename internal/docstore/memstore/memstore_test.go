package memstore_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/docstore/docstoretest"
	"github.com/ernanint/notas-de-vidro/internal/docstore/memstore"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestContract(t *testing.T) {
	docstoretest.Run(t, func(_ *testing.T) docstore.Backend {
		return memstore.New(testLogger())
	})
}

func TestFail(t *testing.T) {
	s := memstore.New(testLogger())
	defer s.Close()

	ctx := context.Background()

	id, err := s.Insert(ctx, "shared_notes", map[string]any{"title": "a"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	outage := errors.New("offline")
	s.Fail(outage)

	if err := s.UpdateFields(ctx, "shared_notes", id, map[string]any{"title": "b"}); !errors.Is(err, outage) {
		t.Fatalf("expected outage error, got %v", err)
	}

	s.Fail(nil)

	doc, err := s.Get(ctx, "shared_notes", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if doc.Fields["title"] != "a" {
		t.Errorf("failed update changed state: title = %v", doc.Fields["title"])
	}
}
