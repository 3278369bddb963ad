package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/WavePortal/internal/health"
	"github.com/jmerrifield20/WavePortal/internal/identity"
	"github.com/jmerrifield20/WavePortal/internal/portal/handler"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"go.uber.org/zap"
)

type routerConfig struct {
	svc          *service.PortalService
	tokens       *identity.TokenIssuer
	auth         *identity.Authenticator
	corsOrigins  []string
	rateLimitRPS float64
	eventBuffer  int
	checker      *health.Checker
	stop         <-chan struct{}
}

func newRouter(rc routerConfig, logger *zap.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// No origins means same-origin only; cors.New panics on an empty list.
	if len(rc.corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     rc.corsOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-ID"},
			AllowCredentials: !containsWildcard(rc.corsOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	router.Use(requestID())
	router.Use(handler.PrometheusMiddleware())

	if rc.rateLimitRPS > 0 {
		burst := int(rc.rateLimitRPS * 2)
		if burst < 1 {
			burst = 1
		}
		router.Use(handler.RateLimiter(rc.rateLimitRPS, burst, rc.stop))
	}

	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if rc.checker == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
			return
		}
		report := rc.checker.Report()
		code := http.StatusOK
		if report.Status != health.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewWaveHandler(rc.svc, rc.tokens, logger).Register(v1)
	handler.NewStreamHandler(rc.svc, rc.eventBuffer, logger).Register(v1)
	handler.NewAuthHandler(rc.auth, logger).Register(v1)

	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestID echoes X-Request-ID or assigns a fresh one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
