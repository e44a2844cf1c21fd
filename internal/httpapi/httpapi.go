// Package httpapi is the operational HTTP surface spec.md §6 calls a
// "collaborator, not core": GET /health, GET /metrics, and the GET /ws
// upgrade endpoint that hands a raw socket to C10. Grounded on the
// teacher's cmd/server setupRouter (global middleware stack, route
// registration) and ws/handler.go's ServeWS (upgrader, CheckOrigin).
// Nothing in internal/router, internal/messageservice, internal/
// roomregistry, or internal/userregistry imports this package.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaychat/server/internal/breaker"
	"github.com/relaychat/server/internal/middleware"
	"github.com/relaychat/server/internal/store"
	"github.com/relaychat/server/internal/ws"
)

// BreakerStatsProvider is implemented by C6 Bus adapters that wrap their
// I/O in a C2 breaker (redisbus does; inprocess has nothing to trip, so
// it is simply absent and /health treats that as never-degraded).
type BreakerStatsProvider interface {
	BreakerStats() breaker.Stats
}

// Deps wires httpapi to the rest of the process without owning any of
// it — every field here is constructed and owned by cmd/server.
type Deps struct {
	Hub       *ws.Hub
	Store     store.Store
	Bus       BreakerStatsProvider // nil when running the in-process bus
	StartedAt time.Time
	Logger    *zap.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; spec.md has no origin-allowlist concept.
		return true
	},
}

// NewRouter builds the gin engine: the teacher's global middleware
// quartet (RequestID, Recovery, Logger, CORS) plus the three routes this
// spec actually needs.
func NewRouter(mode string, deps Deps) *gin.Engine {
	gin.SetMode(mode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.CORS())

	router.GET("/health", healthHandler(deps))
	router.GET("/metrics", metricsHandler(deps))
	router.GET("/ws", wsHandler(deps))

	return router
}

// healthHandler implements spec.md §6's "liveness, uptime, and a
// degraded-if-bus-open flag".
func healthHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		degraded := false
		if deps.Bus != nil && deps.Bus.BreakerStats().State == breaker.StateOpen {
			degraded = true
		}

		dbErr := deps.Store.Ping(c.Request.Context())
		if dbErr != nil {
			degraded = true
		}

		status := http.StatusOK
		if degraded {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    map[bool]string{true: "degraded", false: "healthy"}[degraded],
			"uptime":    time.Since(deps.StartedAt).String(),
			"degraded":  degraded,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// metricsHandler reports the Hub's connection and room counts (the sizes
// of its fleet and byRoom maps, read under its lock) as plain JSON. No
// other counters are reported.
func metricsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := deps.Hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"connections": stats["connections"],
			"rooms":       stats["rooms"],
		})
	}
}

// wsHandler upgrades the HTTP request to a websocket and hands the
// resulting socket straight to C10; authentication happens afterward via
// the client's first `auth` frame (spec.md §6), not at upgrade time.
func wsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			deps.Logger.Warn("httpapi: websocket upgrade failed", zap.Error(err))
			return
		}
		deps.Hub.Accept(conn, c.ClientIP())
	}
}
