// Package mcp exposes the pattern engine over the Model Context Protocol.
// The stdio transport is the only one shipped; HTTP transports, auth, and
// routing are left to embedders.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quaylabs/patternd/internal/capability"
	"github.com/quaylabs/patternd/internal/service"
)

// PatternServerDeps holds the dependencies for creating a PatternServer.
type PatternServerDeps struct {
	Service  *service.Service
	Registry *capability.Registry
	Logger   *slog.Logger
}

// PatternServer wraps an MCP server with pattern engine tool handlers.
type PatternServer struct {
	service   *service.Service
	registry  *capability.Registry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewPatternServer creates a PatternServer with all tools registered.
func NewPatternServer(deps PatternServerDeps) *PatternServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &PatternServer{
		service:  deps.Service,
		registry: deps.Registry,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"patternd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Patternd executes declarative capability patterns. Use pattern.define to register a pattern, pattern.run to execute one (stored or inline), pattern.trace to inspect a past execution, and capability.list to see available capabilities."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *PatternServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *PatternServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *PatternServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: traceTool(), Handler: s.handleTrace},
		{Tool: capabilityListTool(), Handler: s.handleCapabilityList},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("pattern.run",
		mcp.WithDescription("Execute a pattern, either a stored one by id or an inline document"),
		mcp.WithString("pattern_id", mcp.Description("ID of a stored pattern to execute")),
		mcp.WithString("version", mcp.Description("Stored pattern version (default: latest)")),
		mcp.WithObject("document", mcp.Description("Inline pattern document (alternative to pattern_id)")),
		mcp.WithObject("inputs", mcp.Description("Input values pre-seeded into execution state")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("pattern.define",
		mcp.WithDescription("Validate and register a pattern document for later execution"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Pattern document object")),
		mcp.WithString("description", mcp.Description("Human-readable pattern description")),
	)
}

func traceTool() mcp.Tool {
	return mcp.NewTool("pattern.trace",
		mcp.WithDescription("Return the persisted outcome and per-step trace of an execution"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to inspect")),
	)
}

func capabilityListTool() mcp.Tool {
	return mcp.NewTool("capability.list",
		mcp.WithDescription("List registered capabilities and their selected providers"),
	)
}
