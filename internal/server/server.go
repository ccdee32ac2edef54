package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/localrivet/gomcp/server"

	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/tools"
)

// DefaultRequestTimeout bounds a single tool call.
const DefaultRequestTimeout = 30 * time.Second

// Common server error types
var (
	ErrServerNotInitialized = errors.New("server not initialized")
	ErrMissingDependencies  = errors.New("one or more required dependencies are nil")
)

// MCPToolServer implements ToolServer for MCP clients over stdio.
type MCPToolServer struct {
	name      string
	service   RecommendationService
	logger    *slog.Logger
	timeout   time.Duration
	mcpServer server.Server

	// run serves the transport; it defaults to the stdio loop.
	run      func() error
	stopped  chan struct{}
	stopOnce sync.Once
}

var _ ToolServer = (*MCPToolServer)(nil)

// NewToolServer creates a new MCPToolServer instance.
func NewToolServer(name string, service RecommendationService, logger *slog.Logger) *MCPToolServer {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = "hybridrec"
	}
	return &MCPToolServer{
		name:    name,
		service: service,
		logger:  logger.With("component", "mcp"),
		timeout: DefaultRequestTimeout,
		stopped: make(chan struct{}),
	}
}

// Initialize registers the recommendation tools.
func (s *MCPToolServer) Initialize() error {
	s.logger.Info("Initializing MCP tool server")

	if s.service == nil {
		return errortypes.ConfigError(ErrMissingDependencies, "server initialization failed")
	}

	srv := server.NewServer(s.name)

	srv = srv.Tool(tools.ToolRecommend,
		"Recommend items for a free-text query using semantic search expanded through collaborative neighbours",
		s.handleRecommend)

	srv = srv.Tool(tools.ToolSimilarItems,
		"List the items closest to a given item in the collaborative embedding space",
		s.handleSimilarItems)

	srv = srv.Tool(tools.ToolCatalogStats,
		"Report the size of the loaded catalog and the default recommendation options",
		s.handleCatalogStats)

	s.mcpServer = srv
	if s.run == nil {
		s.run = func() error { return srv.AsStdio().Run() }
	}
	s.logger.Info("MCP tool server initialized successfully", "tool_count", 3)
	return nil
}

// Start serves MCP requests on stdio until stdin is closed or Stop is called.
// The stdio loop cannot be interrupted while it waits on stdin, so after Stop
// it is left to end with the process.
func (s *MCPToolServer) Start() error {
	if s.mcpServer == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}

	s.logger.Info("Starting MCP tool server")
	done := make(chan error, 1)
	go func() { done <- s.run() }()

	select {
	case err := <-done:
		return err
	case <-s.stopped:
		return nil
	}
}

// Stop makes a running Start return. It is safe to call more than once.
func (s *MCPToolServer) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping MCP tool server")
		close(s.stopped)
	})
	return nil
}

func (s *MCPToolServer) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// handleRecommend handles the recommend MCP tool call.
func (s *MCPToolServer) handleRecommend(_ *server.Context, req tools.RecommendRequest) (tools.RecommendResponse, error) {
	ctx, cancel := s.requestContext()
	defer cancel()
	return recommend(ctx, s.service, s.logger, req), nil
}

// handleSimilarItems handles the similar_items MCP tool call.
func (s *MCPToolServer) handleSimilarItems(_ *server.Context, req tools.SimilarItemsRequest) (tools.SimilarItemsResponse, error) {
	ctx, cancel := s.requestContext()
	defer cancel()
	return similarItems(ctx, s.service, s.logger, req), nil
}

// handleCatalogStats handles the catalog_stats MCP tool call.
func (s *MCPToolServer) handleCatalogStats(_ *server.Context, _ tools.CatalogStatsRequest) (tools.CatalogStatsResponse, error) {
	return catalogStats(s.service), nil
}

// runRecommend calls the service and logs the outcome.
func runRecommend(ctx context.Context, svc RecommendationService, logger *slog.Logger, req tools.RecommendRequest) ([]catalog.Item, error) {
	logger.Info("Processing recommend request", "query_length", len(strings.TrimSpace(req.Query)))

	items, err := svc.Recommend(ctx, req.Query, req.Options())
	if err != nil {
		errortypes.LogError(logger, err)
		return nil, err
	}

	logger.Info("Successfully produced recommendations", "count", len(items))
	if items == nil {
		items = []catalog.Item{}
	}
	return items, nil
}

func recommend(ctx context.Context, svc RecommendationService, logger *slog.Logger, req tools.RecommendRequest) tools.RecommendResponse {
	response := tools.RecommendResponse{
		Status: tools.StatusSuccess,
		Items:  []catalog.Item{},
	}

	items, err := runRecommend(ctx, svc, logger, req)
	if err != nil {
		response.Status = tools.StatusError
		response.Code = ErrorCode(err)
		response.Error = err.Error()
		return response
	}

	response.Items = items
	return response
}

func similarItems(ctx context.Context, svc RecommendationService, logger *slog.Logger, req tools.SimilarItemsRequest) tools.SimilarItemsResponse {
	logger.Info("Processing similar_items request", "item", req.Item, "limit", req.Limit)

	response := tools.SimilarItemsResponse{
		Status: tools.StatusSuccess,
		Items:  []tools.SimilarItem{},
	}

	// Negative limits reach the recommender and are rejected there.
	limit := req.Limit
	if limit == 0 {
		limit = tools.DefaultSimilarLimit
	}

	neighbours, err := svc.SimilarItems(ctx, req.Item, limit)
	if err != nil {
		errortypes.LogError(logger, err)
		response.Status = tools.StatusError
		response.Code = ErrorCode(err)
		response.Error = err.Error()
		return response
	}

	for _, n := range neighbours {
		response.Items = append(response.Items, tools.SimilarItem{Item: n.Item, Distance: n.Distance})
	}
	return response
}

func catalogStats(svc RecommendationService) tools.CatalogStatsResponse {
	response := tools.CatalogStatsResponse{
		Status:   tools.StatusSuccess,
		Defaults: svc.Defaults(),
	}

	bundle := svc.Bundle()
	if err := bundle.Validate(); err != nil {
		response.Status = tools.StatusError
		response.Code = ErrorCode(err)
		response.Error = err.Error()
		return response
	}
	response.Stats = bundle.Stats()
	return response
}
