// Package server assembles the storage backend, services and HTTP surface
// and runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ernanint/notas-de-vidro/internal/api"
	"github.com/ernanint/notas-de-vidro/internal/config"
	"github.com/ernanint/notas-de-vidro/internal/db"
	"github.com/ernanint/notas-de-vidro/internal/dbpool"
	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/docstore/memstore"
	"github.com/ernanint/notas-de-vidro/internal/docstore/pgstore"
	"github.com/ernanint/notas-de-vidro/internal/docstore/sqlitestore"
	"github.com/ernanint/notas-de-vidro/internal/identity"
	"github.com/ernanint/notas-de-vidro/internal/livesync"
	"github.com/ernanint/notas-de-vidro/internal/metrics"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/service"
	"github.com/ernanint/notas-de-vidro/internal/store"
	"github.com/ernanint/notas-de-vidro/internal/ws"
)

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// registerPoolStats guards the process-wide pool gauges.
var registerPoolStats sync.Once

// App owns the long-lived resources of one server process.
type App struct {
	cfg           *config.Config
	log           *logrus.Logger
	users         *identity.Directory
	backend       docstore.Backend
	pinger        api.Pinger
	pool          *dbpool.Pool
	bridge        *db.NotifyBridge
	schemaVersion int

	// addr receives the bound listen address once Run starts serving.
	addr chan string
}

// NewApp parses the user directory and opens the configured backend.
func NewApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	users, err := identity.Parse(cfg.UserTokens.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing USER_TOKENS: %w", err)
	}

	if len(users.Users()) == 0 {
		return nil, errors.New("USER_TOKENS defines no users")
	}

	a := &App{cfg: cfg, log: log, users: users, addr: make(chan string, 1)}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		a.backend = memstore.New(log)
	case config.BackendSQLite:
		st, err := sqlitestore.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}

		a.backend, a.pinger = st, st
		a.schemaVersion = db.SchemaVersion(goose.DialectSQLite3)
	case config.BackendPostgres:
		if err := a.openPostgres(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	log.WithFields(logrus.Fields{
		"storage": cfg.StorageBackend,
		"users":   len(users.Users()),
		"schema":  a.schemaVersion,
	}).Info("storage ready")

	return a, nil
}

func (a *App) openPostgres(ctx context.Context) error {
	pool, err := dbpool.NewPool(ctx, a.cfg.DatabaseURL.Value(), a.cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := db.RunPostgresMigrations(ctx, pool, a.log); err != nil {
		pool.Close()
		return err
	}

	st := pgstore.New(pool, a.log)

	a.pool = pool
	a.backend, a.pinger = st, pool
	registerPoolStats.Do(func() { metrics.RegisterPoolStats(pool.Stats) })
	a.bridge = db.NewNotifyBridge(a.log, pool, st.Broker())
	a.schemaVersion = db.SchemaVersion(goose.DialectPostgres)

	return nil
}

// Close releases the backend and, for postgres, the pool.
func (a *App) Close() {
	if err := a.backend.Close(); err != nil {
		a.log.WithError(err).Warn("closing storage")
	}

	if a.pool != nil {
		a.pool.Close()
	}
}

// Addr blocks until the server is listening and returns its address.
func (a *App) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-a.addr:
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *App) handler(ctx context.Context) (http.Handler, *ws.Hub, *service.AuditWorker) {
	stores := store.NewStores(store.Base{Backend: a.backend, Log: a.log, Directory: a.users})

	hub := ws.NewHub(a.log)
	worker := service.NewAuditWorker(stores.Audit, a.log, a.cfg.AuditQueueSize)

	entities := service.NewEntityService(map[models.Kind]service.EntityStore{
		models.KindNote:          stores.Notes,
		models.KindTask:          stores.Tasks,
		models.KindChecklistItem: stores.Checklist,
	}, worker, hub, a.log)

	h := api.NewRouter(ctx, &api.RouterDeps{
		Log:      a.log,
		Hub:      hub,
		Entities: entities,
		Audit:    service.NewAuditService(stores.Audit),
		Sources: map[models.Kind]livesync.Source{
			models.KindNote:          stores.Notes,
			models.KindTask:          stores.Tasks,
			models.KindChecklistItem: stores.Checklist,
		},
		Users:         a.users,
		Store:         a.pinger,
		CORSOrigins:   a.cfg.CORSOrigins,
		Version:       config.Version,
		Backend:       a.cfg.StorageBackend,
		SchemaVersion: a.schemaVersion,
	})

	return h, hub, worker
}

// Run serves HTTP until ctx is cancelled or a component fails, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	h, hub, worker := a.handler(gctx)

	if a.bridge != nil {
		if err := a.bridge.Start(gctx); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.WithFields(logrus.Fields{
			"addr":    ln.Addr().String(),
			"version": config.Version,
		}).Info("server listening")
		a.addr <- ln.Addr().String()

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
