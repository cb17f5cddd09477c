// Package server assembles the HTTP API.
package server

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/httpx"
	"carbon-scribe/credit-ledger/internal/ledger"
	"carbon-scribe/credit-ledger/internal/mrv"
	"carbon-scribe/credit-ledger/internal/payments"
	"carbon-scribe/credit-ledger/internal/projects"
	"carbon-scribe/credit-ledger/internal/retirement"
)

// APIPrefix is where the versioned API is mounted
const APIPrefix = "/api/v1"

// Services are the domain services exposed over HTTP
type Services struct {
	Projects   *projects.Service
	Tracker    *mrv.Tracker
	Gate       *mrv.Gate
	Ledger     *ledger.Service
	Payments   *payments.Service
	Retirement *retirement.Service
}

// Options configure the router
type Options struct {
	Mode           string
	AllowedOrigins []string
	// Ping reports storage health; nil means always healthy
	Ping func(ctx context.Context) error
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(opts Options, verifier auth.Verifier, svc Services, logger *zap.Logger) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	router := gin.New()
	router.Use(recovery(logger), requestLogger(logger), cors(opts.AllowedOrigins))

	router.GET("/health", health(opts.Ping))

	public := router.Group(APIPrefix)
	protected := router.Group(APIPrefix, auth.Middleware(verifier, logger))

	projects.NewHandler(svc.Projects, logger).RegisterRoutes(protected)
	mrv.NewHandler(svc.Tracker, svc.Gate, logger).RegisterRoutes(protected)
	ledger.NewHandler(svc.Ledger, logger).RegisterRoutes(public, protected)
	payments.NewHandler(svc.Payments, logger).RegisterRoutes(public, protected)
	retirement.NewHandler(svc.Retirement, logger).RegisterRoutes(protected)

	router.NoRoute(func(c *gin.Context) {
		httpx.RespondError(c, logger, apperr.NotFound("no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})
	return router
}

func health(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				status, code = "unhealthy", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
		})
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": httpx.ErrorBody{
			Code:    string(apperr.KindInternal),
			Message: "internal server error",
		}})
	})
}

func cors(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", "Content-Length", "Accept-Encoding", "Authorization",
			"accept", "origin", "Cache-Control", "X-Requested-With", payments.SignatureHeader,
		}, ", "))
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
