// Package mcp exposes the storage context as MCP tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Zereker/storekit/pkg/genkit"
	"github.com/Zereker/storekit/pkg/log"
	"github.com/Zereker/storekit/pkg/storage"
)

// ServerConfig contains server configuration
type ServerConfig struct {
	Name    string
	Version string
}

// Server represents an MCP server
type Server struct {
	logger   *slog.Logger
	storage  *storage.Context
	embedder genkit.Embedder
	server   *mcp.Server
}

// NewServer creates an MCP server with the store tools registered.
// embedder may be nil, vector_query then requires query_embedding.
func NewServer(sc *storage.Context, embedder genkit.Embedder, config ServerConfig) *Server {
	s := &Server{
		logger:   log.Logger("mcp"),
		storage:  sc,
		embedder: embedder,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    config.Name,
		Version: config.Version,
	}, nil)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        vectorQueryToolName,
		Description: vectorQueryDescription,
	}, s.handleVectorQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        getDocumentToolName,
		Description: getDocumentDescription,
	}, s.handleGetDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        deleteRefDocToolName,
		Description: deleteRefDocDescription,
	}, s.handleDeleteRefDoc)

	return s
}

// RunStdio runs the MCP server using stdio transport
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("starting stdio server")

	err := s.server.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
