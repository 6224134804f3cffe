// Package api exposes the kiosk and admin HTTP surface.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"facekiosk/internal/attendance"
	"facekiosk/internal/auth"
	"facekiosk/internal/httpmiddleware"
	"facekiosk/internal/kiosk"
	"facekiosk/internal/metrics"
	"facekiosk/internal/worker"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the handlers call.
type Deps struct {
	Workers    *worker.Service
	Ledger     *attendance.Service
	Kiosk      *kiosk.Manager
	Tokens     *auth.Tokens
	SigningKey string
	Issuer     string
	// ReportLocation is the timezone used for daily views and CSV export.
	ReportLocation *time.Location
	// MediaDir is served under /media/ when the filesystem object store is used.
	MediaDir    string
	CORSOrigins []string
	Limiter     httpmiddleware.Limiter
	Health      map[string]HealthCheck
	Now         func() time.Time
}

// Handler holds the dependencies of every route.
type Handler struct {
	workers *worker.Service
	ledger  *attendance.Service
	kiosk   *kiosk.Manager
	tokens  *auth.Tokens
	loc     *time.Location
	health  map[string]HealthCheck
	now     func() time.Time
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	h := &Handler{
		workers: d.Workers,
		ledger:  d.Ledger,
		kiosk:   d.Kiosk,
		tokens:  d.Tokens,
		loc:     d.ReportLocation,
		health:  d.Health,
		now:     d.Now,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(securityHeaders())
	r.Use(requestMetrics())
	if d.Limiter != nil {
		r.Use(httpmiddleware.GinMiddleware(d.Limiter))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)
	if d.MediaDir != "" {
		r.Static("/media", d.MediaDir)
	}

	r.POST("/v1/devices/register", h.RegisterDevice)
	r.POST("/v1/admin/login", h.AdminLogin)
	r.POST("/v1/auth/refresh", h.Refresh)

	device := r.Group("/v1/kiosk", auth.RequireRole(d.SigningKey, d.Issuer, auth.RoleDevice))
	{
		device.GET("/workers", h.KioskWorkers)
		device.POST("/sessions", h.OpenSession)
		device.GET("/session", h.CurrentSession)
		device.GET("/sessions/:id", h.GetSession)
		device.DELETE("/sessions/:id", h.AbandonSession)
		device.POST("/sessions/:id/capture", h.Capture)
		device.POST("/sessions/:id/retry", h.Retry)
		device.POST("/sessions/:id/override", h.InitiateOverride)
		device.POST("/sessions/:id/override/cancel", h.CancelOverride)
		device.POST("/sessions/:id/override/confirm", h.ConfirmOverride)
	}

	admin := r.Group("/v1/admin", auth.RequireRole(d.SigningKey, d.Issuer, auth.RoleAdmin))
	{
		admin.GET("/workers", h.ListWorkers)
		admin.POST("/workers", h.AddWorker)
		admin.DELETE("/workers/:id", h.RemoveWorker)

		admin.GET("/attendance", h.History)
		admin.GET("/attendance/daily", h.Daily)
		admin.GET("/attendance/export", h.Export)
		admin.DELETE("/attendance/:id", h.RemoveRecord)
	}

	return r
}

// Healthz reports every dependency; any failure returns 503.
func (h *Handler) Healthz(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.health {
		ok := check(c.Request.Context())
		resp[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
		}
	}
	c.JSON(status, resp)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// securityHeaders adds the usual hardening headers; HSTS only in release mode.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status()))
	}
}
