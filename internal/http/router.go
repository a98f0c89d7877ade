// Package httpapi wires the read-only ops API (Gin) to the ticket and roster
// services. The bot itself never depends on this surface; it exists so a
// dashboard or an on-call organizer can inspect the live board without
// touching the chat commands.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/http/handlers"
	"github.com/tbourn/go-supply-bot/internal/http/middleware"
	"github.com/tbourn/go-supply-bot/internal/services"
)

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. CORS
func RegisterRoutes(r *gin.Engine, tickets *services.TicketService, roster *services.RosterService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// CORS posture: allow all when no origins are configured. The API is
	// read-only, so the permissive default is acceptable for dashboards.
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(tickets, roster)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/tickets", h.ListTickets)
		api.GET("/tickets/:id", h.GetTicket)
		api.GET("/groups", h.ListGroups)
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
