package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soilSpoon/llmux/internal/dispatch"
	"github.com/soilSpoon/llmux/internal/domain/cooldown"
	"github.com/soilSpoon/llmux/internal/domain/router"
)

// Server is the gateway's HTTP ingress, mounting the Dispatcher across
// every dialect-specific route plus the observability/admin surface.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config controls the listen address and gin's run mode.
type Config struct {
	Host           string
	Port           int
	Mode           string // debug, release
	AdminJWTSecret string // empty disables bearer-token auth on the admin surface

	// MetricsGatherer backs /metrics; nil falls back to the process-default
	// Prometheus gatherer.
	MetricsGatherer prometheus.Gatherer

	// AMPUpstreamURL is the management-passthrough target; empty disables
	// the passthrough surface (requests get 503).
	AMPUpstreamURL string
}

// NewServer builds the gin engine and wraps it in an http.Server.
func NewServer(cfg Config, d *dispatch.Dispatcher, r *router.Router, cm *cooldown.Manager, logger *zap.Logger) *Server {
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ginLogger(logger))

	setupRoutes(engine, d, r, cm, cfg.AdminJWTSecret, cfg.MetricsGatherer, cfg.AMPUpstreamURL)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: engine},
		logger: logger,
	}
}

// Start begins serving in the background. The http.ErrServerClosed that
// ListenAndServe returns after Stop is not logged; any other serve error is
// logged at error level.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func dispatchHandler(d *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		d.Handle(c.Writer, c.Request)
	}
}

// setupRoutes mounts the dialect ingresses (direct and provider-scoped),
// the admin/observability surface, and the management passthrough group.
// gin's radix-tree router gives exact > param > wildcard match priority.
func setupRoutes(engine *gin.Engine, d *dispatch.Dispatcher, r *router.Router, cm *cooldown.Manager, adminJWTSecret string, gatherer prometheus.Gatherer, ampUpstreamURL string) {
	handle := dispatchHandler(d)
	passthrough := managementPassthrough(ampUpstreamURL)

	engine.POST("/v1/chat/completions", handle)
	engine.POST("/v1/messages", handle)
	engine.POST("/v1/responses", handle)
	engine.POST("/v1beta/models/*action", handle)

	provider := engine.Group("/api/provider/:provider")
	{
		provider.POST("/v1/chat/completions", handle)
		provider.POST("/v1/messages", handle)
		provider.POST("/v1/responses", handle)
		provider.POST("/v1beta/models/*action", handle)
		provider.GET("/v1/models", handle)
	}

	for _, prefix := range []string{"/api/internal", "/api/user", "/api/auth", "/api/meta", "/api/ads", "/api/telemetry", "/api/threads", "/api/otel", "/api/tab"} {
		group := engine.Group(prefix)
		group.GET("", passthrough)
		group.POST("", passthrough)
		group.GET("/*path", passthrough)
		group.POST("/*path", passthrough)
	}
	for _, path := range []string{"/threads.rss", "/news.rss", "/threads", "/docs", "/settings", "/auth"} {
		engine.GET(path, passthrough)
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})
	guard := adminAuth(adminJWTSecret)
	engine.GET("/providers", guard, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"providers": r.Health()})
	})
	engine.GET("/status", guard, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"health": r.Health()})
	})
	engine.POST("/admin/cooldowns/reset", guard, func(c *gin.Context) {
		var body struct {
			Key string `json:"key"`
		}
		_ = c.ShouldBindJSON(&body)
		if body.Key != "" {
			cm.Reset(body.Key)
			c.JSON(http.StatusOK, gin.H{"reset": body.Key})
			return
		}
		entries := cm.GetAll()
		for _, e := range entries {
			cm.Reset(e.Key)
		}
		c.JSON(http.StatusOK, gin.H{"reset_count": len(entries)})
	})
	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	engine.GET("/metrics", gin.WrapH(metricsHandler))
}

// managementPassthrough redirects management-surface requests to the AMP
// upstream with a 307 (preserving method and body), or 503s when no
// upstream is configured.
func managementPassthrough(upstreamURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if upstreamURL == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{"message": "no upstream configured for this path", "type": "service_unavailable"},
			})
			return
		}
		target := strings.TrimSuffix(upstreamURL, "/") + c.Request.URL.RequestURI()
		c.Redirect(http.StatusTemporaryRedirect, target)
	}
}

// ginLogger structured-logs one line per request.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
