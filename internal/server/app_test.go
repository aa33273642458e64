package server

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

func testConfig(backend string) *config.Config {
	return &config.Config{
		StorageBackend: backend,
		SQLitePath:     ":memory:",
		Port:           "0",
		ListenHost:     "127.0.0.1",
		LogLevel:       "error",
		UserTokens:     config.Secret("alice-token:alice,bob-token:bob"),
		AuditQueueSize: 10,
	}
}

func TestNewApp_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	cfg := testConfig(config.BackendMemory)
	cfg.UserTokens = config.Secret("no-colon")

	if _, err := NewApp(t.Context(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error for malformed USER_TOKENS")
	}
}

func TestNewApp_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewApp(t.Context(), testConfig("redis"), quietLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewApp_SQLiteFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(config.BackendSQLite)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "notas.db")

	app, err := NewApp(t.Context(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	if app.schemaVersion < 1 {
		t.Errorf("schemaVersion = %d, want >= 1", app.schemaVersion)
	}

	if app.pinger == nil {
		t.Error("sqlite backend should be pingable")
	}
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	t.Parallel()

	app, err := NewApp(t.Context(), testConfig(config.BackendMemory), quietLogger())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer waitCancel()

	addr, err := app.Addr(waitCtx)
	if err != nil {
		t.Fatalf("server never listened: %v", err)
	}

	req, _ := http.NewRequestWithContext(waitCtx, http.MethodPost, "http://"+addr+"/api/v1/notes",
		strings.NewReader(`{"title":"hello"}`))
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create status = %d, want 201", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
