package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
)

// ContextService is the subset of *memory.Service the tools call.
type ContextService interface {
	ExtractContext(ctx context.Context, req memory.ExtractRequest) (*memory.ExtractResponse, error)
	ExtractConversationFile(ctx context.Context, req memory.ConversationRequest) (*memory.ExtractResponse, error)
	SearchContext(ctx context.Context, req memory.SearchRequest) ([]search.Result, error)
	FindRelated(ctx context.Context, id string, limit int) ([]search.Result, error)
	GetEvolutionChain(ctx context.Context, id string, depth int) ([]*ctxitem.Item, error)
	InjectContext(ctx context.Context, req memory.InjectRequest) (*memory.InjectResponse, error)
}

var _ ContextService = (*memory.Service)(nil)

// Server serves the context tools over MCP.
type Server struct {
	mcp     *mcp.Server
	svc     ContextService
	metrics *Metrics
	timeout time.Duration
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name reported to clients (default: "ctxgraph").
	Name string

	// Version is the implementation version (default: "dev").
	Version string

	// RequestTimeout bounds each tool call. Zero means no bound.
	RequestTimeout time.Duration

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:           "ctxgraph",
		Version:        "dev",
		RequestTimeout: 30 * time.Second,
		Logger:         zap.NewNop(),
	}
}

// NewServer creates a server and registers its tools.
func NewServer(cfg *Config, svc ContextService) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, errors.New("context service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(logger)
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "ctxgraph"
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp:     mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		svc:     svc,
		metrics: metrics,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects. Nothing else may write to stdout while it runs.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect attaches the server to a single transport and returns the session.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
