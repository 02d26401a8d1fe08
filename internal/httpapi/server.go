// Package httpapi exposes the session and tab surface over HTTP with JSON
// bodies. Every failure maps the internal taxonomy to a status code and an
// {error: ...} object.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tabhost-server/internal/browser"
	"tabhost-server/internal/config"
	"tabhost-server/internal/driver"
	"tabhost-server/internal/recorder"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server wires the registry, driver, and instrumentation behind a gin router.
type Server struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *browser.SessionRegistry
	drv      driver.Driver
	rec      *recorder.Recorder
	engine   *gin.Engine
	metrics  *metrics
}

// New builds the router with all routes and middleware registered.
func New(cfg config.Config, logger *zap.Logger, reg *browser.SessionRegistry, drv driver.Driver, rec *recorder.Recorder) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Server.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		drv:      drv,
		rec:      rec,
		metrics:  newMetrics(reg),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(s.metrics.middleware())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Accept", "Origin"},
		MaxAge:       12 * time.Hour,
	}))

	engine.POST("/tabs", s.createTab)
	engine.GET("/tabs", s.listTabs)
	engine.POST("/tabs/:id/navigate", s.navigate)
	engine.GET("/tabs/:id/snapshot", s.snapshot)
	engine.POST("/tabs/:id/click", s.click)
	engine.POST("/tabs/:id/type", s.typeText)
	engine.POST("/tabs/:id/hover", s.hover)
	engine.POST("/tabs/:id/scroll", s.scroll)
	engine.GET("/tabs/:id/screenshot", s.screenshot)
	engine.DELETE("/tabs/:id", s.closeTab)
	engine.DELETE("/groups/:key", s.closeGroup)
	engine.DELETE("/sessions/:tenant_id", s.closeSession)
	engine.GET("/stats", s.stats)
	engine.GET("/healthz", s.health)
	engine.GET("/metrics", s.metrics.handler())

	s.engine = engine
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains with a shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server draining")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
