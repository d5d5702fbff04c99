package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/docstore-mcp/internal/docset"
)

const (
	// ServerName is the MCP server name
	ServerName = "docstore-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Options configures the MCP server
type Options struct {
	DefaultPageSize int         // list_documents page size when none is given (default 20)
	MaxPageSize     int         // Upper bound for page_size (default 100)
	Logger          *zap.Logger // Optional
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	registry *docset.Registry
	opts     Options
	logger   *zap.Logger
}

// NewServer creates a new MCP server exposing the collections of registry
func NewServer(registry *docset.Registry, opts Options) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		registry: registry,
		opts:     opts,
		logger:   logger,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", zap.Strings("collections", s.registry.Names()))
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{createCollectionTool(), s.handleCreateCollection},
		{destroyCollectionTool(), s.handleDestroyCollection},
		{listCollectionsTool(), s.handleListCollections},
		{addDocumentTool(), s.handleAddDocument},
		{randomDocumentTool(), s.handleRandomDocument},
		{latestDocumentTool(), s.handleLatestDocument},
		{listDocumentsTool(), s.handleListDocuments},
		{countDocumentsTool(), s.handleCountDocuments},
		{userStatsTool(), s.handleUserStats},
		{deleteDocumentsTool(), s.handleDeleteDocuments},
	}
	for _, t := range tools {
		s.mcp.AddTool(t.tool, s.logged(t.tool.Name, t.handler))
	}
	return nil
}

// logged wraps a handler with a debug log line per call
func (s *Server) logged(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started := time.Now()
		result, err := h(ctx, request)
		fields := []zap.Field{zap.String("tool", name), zap.Duration("duration", time.Since(started))}
		if err != nil {
			s.logger.Warn("tool call failed", append(fields, zap.Error(err))...)
		} else {
			s.logger.Debug("tool call", fields...)
		}
		return result, err
	}
}
