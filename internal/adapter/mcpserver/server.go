// Package mcpserver exposes registered tools to an external agent loop over
// the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"webscout/internal/domain"
)

// Server serves a fixed set of tools over MCP.
type Server struct {
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New builds an MCP server publishing every tool in catalog.
func New(name, version string, catalog domain.ToolCatalog, logger *slog.Logger) *Server {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range catalog.List() {
		schema := t.Schema()
		params := schema.Parameters
		if len(params) == 0 || string(params) == "null" {
			params = json.RawMessage(`{"type":"object"}`)
		}
		s.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, params), toolHandler(t, logger))
		logger.Debug("mcp tool published", "tool", schema.Name)
	}
	return &Server{mcp: s, logger: logger}
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

// HandleMessage processes one JSON-RPC message. Used by tests and embedders
// that bring their own transport.
func (s *Server) HandleMessage(ctx context.Context, msg json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, msg)
}

// toolHandler adapts a domain.Tool to an MCP tool call. Tool failures become
// MCP error results, not protocol errors.
func toolHandler(t domain.Tool, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := json.RawMessage(`{}`)
		if args := req.GetRawArguments(); args != nil {
			data, err := json.Marshal(args)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			params = data
		}

		logger.Debug("mcp tool call", "tool", t.Name())
		result, err := t.Execute(ctx, params)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if result.IsError {
			return mcp.NewToolResultError(result.Content), nil
		}
		return mcp.NewToolResultText(result.Content), nil
	}
}
