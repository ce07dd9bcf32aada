// Package mcp exposes the engine to agents over the Model Context Protocol.
// Agents spawn nodes as they fan work out, collapse the scene when a task
// completes, and query the archive afterwards.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nodefold/nodefold/internal/engine"
	"github.com/nodefold/nodefold/internal/query"
	"github.com/nodefold/nodefold/internal/streaming"
	"github.com/nodefold/nodefold/internal/validation"
)

// FoldServerDeps holds the dependencies for creating a FoldServer.
type FoldServerDeps struct {
	Engine    *engine.Engine
	Query     *query.Runner
	Validator *validation.SceneValidator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// FoldServer wraps an MCP server with nodefold tool handlers.
type FoldServer struct {
	engine    *engine.Engine
	query     *query.Runner
	validator *validation.SceneValidator
	hub       streaming.EventHub
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFoldServer creates a new FoldServer with all 6 tools registered.
func NewFoldServer(deps FoldServerDeps) *FoldServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Query == nil {
		deps.Query = query.NewRunner()
	}
	if deps.Hub == nil && deps.Engine != nil {
		deps.Hub = deps.Engine.Hub()
	}

	s := &FoldServer{
		engine:    deps.Engine,
		query:     deps.Query,
		validator: deps.Validator,
		hub:       deps.Hub,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"nodefold",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Nodefold visualizes agent work as a living node flow. Use nodefold.spawn to add a node when work fans out, nodefold.collapse to fold the whole scene into the archive when a task completes, nodefold.cancel to abort an in-flight collapse, nodefold.status for live counters, nodefold.history to query the archive (optionally with a jq filter), and nodefold.scene to replay a declarative scene."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FoldServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FoldServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FoldServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: spawnTool(), Handler: s.handleSpawn},
		{Tool: collapseTool(), Handler: s.handleCollapse},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: sceneTool(), Handler: s.handleScene},
	}
}

// --- Tool definitions ---

func spawnTool() mcp.Tool {
	return mcp.NewTool("nodefold.spawn",
		mcp.WithDescription("Add a node to the live flow"),
		mcp.WithString("kind", mcp.Required(),
			mcp.Enum("understanding", "worker", "helper", "expert"),
			mcp.Description("What the node represents"),
		),
		mcp.WithString("label", mcp.Required(), mcp.Description("Short human-readable label")),
		mcp.WithString("parent_id", mcp.Description("ID of the parent node, if this work branched off another node")),
	)
}

func collapseTool() mcp.Tool {
	return mcp.NewTool("nodefold.collapse",
		mcp.WithDescription("Fold every active node into the archive, last spawned first"),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("nodefold.cancel",
		mcp.WithDescription("Abort the in-flight collapse and restore collapsing nodes to active"),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("nodefold.status",
		mcp.WithDescription("Get live scene counters and idle time"),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("nodefold.history",
		mcp.WithDescription("List archived entries in completion order, optionally reshaped with a jq filter"),
		mcp.WithString("filter", mcp.Description("jq filter applied to the entry array, e.g. '[.[] | select(.kind == \"worker\")]'")),
		mcp.WithString("kind", mcp.Description("Only entries of this kind")),
		mcp.WithNumber("limit", mcp.Description("Only the most recent N entries")),
	)
}

func sceneTool() mcp.Tool {
	return mcp.NewTool("nodefold.scene",
		mcp.WithDescription("Validate a declarative scene and spawn its nodes in order"),
		mcp.WithObject("scene", mcp.Required(), mcp.Description("Scene document: {name?, nodes: [{ref, kind, label, parent?}]}")),
	)
}
