// Package httpapi provides the HTTP API for quizd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/config"
	"github.com/fyrsmithlabs/quizd/internal/pipeline"
)

// Server exposes the pipeline over HTTP.
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Pipeline
	metrics  *Metrics
	logger   *zap.Logger
	config   config.ServerConfig
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(p *pipeline.Pipeline, metrics *Metrics, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: cfg.RequestTimeout,
	}))

	s := &Server{
		echo:     e,
		pipeline: p,
		metrics:  metrics,
		logger:   logger.Named("http"),
		config:   cfg,
	}

	e.Use(s.requestLogger)
	s.registerRoutes()
	return s, nil
}

// requestLogger logs every request and feeds the request metrics.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		duration := time.Since(start)

		s.metrics.observeRequest(c.Request().Method, c.Path(), c.Response().Status, duration.Seconds())
		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", duration),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.POST("/generate", s.handleGenerate)
	v1.POST("/shards/invalidate", s.handleInvalidate)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req pipeline.SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.pipeline.Search(c.Request().Context(), req)
	if err != nil {
		if c.Request().Context().Err() != nil {
			return echo.NewHTTPError(http.StatusRequestTimeout, "request cancelled")
		}
		s.logger.Error("search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.metrics.observeSearch(string(resp.Quality), resp.Metadata.CacheHit)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req pipeline.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.pipeline.Generate(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoSuitableContent) {
			s.metrics.observeGenerate("rejected")
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		if c.Request().Context().Err() != nil {
			return echo.NewHTTPError(http.StatusRequestTimeout, "request cancelled")
		}
		s.metrics.observeGenerate("error")
		s.logger.Error("generate failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	switch {
	case resp.Success:
		s.metrics.observeGenerate("success")
	case resp.ErrorClass != "":
		s.metrics.observeGenerate(resp.ErrorClass)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleInvalidate(c echo.Context) error {
	s.pipeline.InvalidateCaches()
	s.logger.Info("caches invalidated")
	return c.NoContent(http.StatusNoContent)
}

// Start begins serving. Blocks until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("http server starting", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
