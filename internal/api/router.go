package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/livesync"
	"github.com/ernanint/notas-de-vidro/internal/middleware"
	"github.com/ernanint/notas-de-vidro/internal/models"
	"github.com/ernanint/notas-de-vidro/internal/ws"
)

// UserDirectory authenticates tokens for both HTTP requests and live
// connections.
type UserDirectory interface {
	middleware.UserLookup
	ws.UserValidator
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log           *logrus.Logger
	Hub           *ws.Hub
	Entities      EntityService
	Audit         AuditService
	Sources       map[models.Kind]livesync.Source
	Users         UserDirectory
	Store         Pinger
	CORSOrigins   []string
	Version       string
	Backend       string
	SchemaVersion int
}

// Router-level limits.
const (
	maxBodySize = 10 << 20 // inline background images up to 8 MB plus the JSON envelope
	rateLimit   = 50       // requests per second per user
	rateBurst   = 100
)

func setupMiddleware(r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	var conns ConnCounter
	if deps.Hub != nil {
		conns = deps.Hub
	}

	health := NewHealthHandler(deps.Store, conns, log, deps.Version, deps.Backend, deps.SchemaVersion)
	entities := NewEntityHandler(deps.Entities, log)
	audit := NewAuditHandler(deps.Audit, log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	guard := middleware.NewBruteForceGuard(ctx, log)
	api.Use(middleware.BruteForceMiddleware(guard))
	api.Use(middleware.AuthMiddleware(deps.Users, log, guard))
	api.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())

	for _, kind := range models.Kinds {
		g := api.Group("/"+kind.Plural(), withKind(kind))

		g.GET("", entities.List)
		g.POST("", entities.Create)
		g.GET("/:id", entities.Get)
		g.PUT("/:id", entities.Update)
		g.DELETE("/:id", entities.Delete)
		g.POST("/:id/toggle", entities.Toggle)
		g.POST("/:id/share", entities.Share)
		g.DELETE("/:id/share/:user", entities.Unshare)
		g.GET("/:id/history", entities.History)
	}

	api.GET("/audit", audit.Query)

	if deps.Hub != nil {
		api.GET("/live", liveHandler(ctx, log, deps.Hub, deps.Sources, deps.CORSOrigins, deps.Users))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
