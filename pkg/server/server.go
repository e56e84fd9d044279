package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/logger"
	"actioner/pkg/health"
	"actioner/pkg/middleware"
	"actioner/pkg/ratelimit"
	"actioner/pkg/tracing"
)

// Ops serves /health and /metrics for one service.
type Ops struct {
	cfg    config.ServerConfig
	router *gin.Engine
	server *http.Server
	logger logger.Logger
}

func NewOps(cfg *config.Config, serviceName string, registry *health.CheckerRegistry, log logger.Logger) *Ops {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))

	if cfg.RateLimit.Enabled {
		router.Use(ratelimit.Middleware(ratelimit.NewKeyed(ratelimit.RateLimitConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		})))
	}

	router.GET("/health", HealthHandler(registry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Ops{
		cfg:    cfg.Server,
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		logger: log,
	}
}

// HealthHandler answers 503 only when a dependency is unhealthy; a degraded
// service still serves traffic.
func HealthHandler(registry *health.CheckerRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := registry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	}
}

func (o *Ops) Handler() http.Handler {
	return o.router
}

// Run serves until ctx ends, then shuts the server down.
func (o *Ops) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		o.logger.InfowCtx(ctx, "HTTP server starting", "port", o.cfg.Port)
		if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := o.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return <-errCh
}
