// Package http provides the JSON HTTP API for ctxgraph.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
)

// ContextService is the subset of *memory.Service the API calls.
type ContextService interface {
	ExtractContext(ctx context.Context, req memory.ExtractRequest) (*memory.ExtractResponse, error)
	ExtractConversationFile(ctx context.Context, req memory.ConversationRequest) (*memory.ExtractResponse, error)
	SearchContext(ctx context.Context, req memory.SearchRequest) ([]search.Result, error)
	FindRelated(ctx context.Context, id string, limit int) ([]search.Result, error)
	GetEvolutionChain(ctx context.Context, id string, depth int) ([]*ctxitem.Item, error)
	InjectContext(ctx context.Context, req memory.InjectRequest) (*memory.InjectResponse, error)
	CreateRelationship(ctx context.Context, rel ctxitem.Relationship) error
	DeleteRelationship(ctx context.Context, key ctxitem.EdgeKey) error
}

var _ ContextService = (*memory.Service)(nil)

// Server provides HTTP endpoints for ctxgraph.
type Server struct {
	echo   *echo.Echo
	svc    ContextService
	logger *zap.Logger
	config *Config
	prom   *PromMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RequestTimeout bounds each API call. Zero means no bound.
	RequestTimeout time.Duration

	// BodyLimit caps request bodies in echo notation ("10M").
	BodyLimit string

	// Version is reported by /health.
	Version string
}

// NewServer creates a server with its middleware and routes.
func NewServer(svc ContextService, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("context service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9191, RequestTimeout: 30 * time.Second}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "10M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		svc:    svc,
		logger: logger,
		config: cfg,
		prom:   NewPromMetrics(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(s.requestLogger())
	e.Use(s.prom.Middleware())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", s.prom.Handler())

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extract", s.handleExtract)
	v1.POST("/search", s.handleSearch)
	v1.POST("/inject", s.handleInject)
	v1.GET("/items/:id/related", s.handleRelated)
	v1.GET("/items/:id/chain", s.handleChain)
	v1.POST("/relationships", s.handleCreateRelationship)
	v1.DELETE("/relationships", s.handleDeleteRelationship)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.RequestTimeout)
}

// apiError maps service errors onto HTTP status codes.
func (s *Server) apiError(c echo.Context, op string, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ctxitem.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ctxitem.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ctxitem.ErrPersistenceUnavailable), errors.Is(err, ctxitem.ErrEmbeddingUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	return echo.NewHTTPError(status, err.Error())
}
