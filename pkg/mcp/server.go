package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/internal/studio"
)

// StudioServerDeps holds the dependencies for creating a StudioServer.
type StudioServerDeps struct {
	Service *studio.Service
	Hub     streaming.Hub
	Logger  *slog.Logger
}

// StudioServer wraps an MCP server with workflow-editing tool handlers.
type StudioServer struct {
	service   *studio.Service
	hub       streaming.Hub
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewStudioServer creates a StudioServer with every tool registered.
func NewStudioServer(deps StudioServerDeps) *StudioServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &StudioServer{
		service:  deps.Service,
		hub:      deps.Hub,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"mabel",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("MABEL Studio infers data-flow graphs from workflow YAML. Use mabel.inspect to see edges, execution levels and validation issues, mabel.import to get canvas state with positions, mabel.export to write YAML back, mabel.diagram to render the graph, mabel.query to search blocks, and mabel.project / mabel.block to edit stored projects. Call mabel.watch to receive change notifications for a project."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *StudioServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		notifier := NewProjectNotifier(s.mcpServer, s.sessions, s.logger)
		go func() {
			if err := notifier.Run(ctx, s.hub); err != nil && ctx.Err() == nil {
				s.logger.Warn("project notifier stopped", "error", err)
			}
		}()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *StudioServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the registry of sessions watching projects.
func (s *StudioServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *StudioServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: inspectTool(), Handler: s.handleInspect},
		{Tool: importTool(), Handler: s.handleImport},
		{Tool: exportTool(), Handler: s.handleExport},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: projectTool(), Handler: s.handleProject},
		{Tool: blockTool(), Handler: s.handleBlock},
		{Tool: watchTool(), Handler: s.handleWatch},
	}
}

// --- Tool definitions ---

func inspectTool() mcp.Tool {
	return mcp.NewTool("mabel.inspect",
		mcp.WithDescription("Infer edges, execution levels and validation issues for a workflow"),
		mcp.WithString("yaml", mcp.Description("MABEL workflow YAML")),
		mcp.WithString("project_id", mcp.Description("Stored project to inspect instead of yaml")),
	)
}

func importTool() mcp.Tool {
	return mcp.NewTool("mabel.import",
		mcp.WithDescription("Parse workflow YAML into canvas state with levels and positions assigned"),
		mcp.WithString("yaml", mcp.Required(), mcp.Description("MABEL workflow YAML")),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("mabel.export",
		mcp.WithDescription("Render canvas state or a stored project as MABEL YAML"),
		mcp.WithObject("state", mcp.Description("Canvas state object")),
		mcp.WithString("project_id", mcp.Description("Stored project to export instead of state")),
		mcp.WithString("message", mcp.Description("Revision message when exporting a project")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("mabel.diagram",
		mcp.WithDescription("Render the inferred graph as Mermaid, ASCII art, Graphviz DOT, or a base64-encoded PNG/SVG image"),
		mcp.WithString("yaml", mcp.Description("MABEL workflow YAML")),
		mcp.WithString("project_id", mcp.Description("Stored project to render instead of yaml")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "ascii", "dot", "png", "svg"),
			mcp.Description("Output format"),
		),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("mabel.query",
		mcp.WithDescription("Search a workflow with a jq query or filter its blocks with a boolean expression"),
		mcp.WithString("yaml", mcp.Description("MABEL workflow YAML")),
		mcp.WithString("project_id", mcp.Description("Stored project to search instead of yaml")),
		mcp.WithString("expr", mcp.Required(), mcp.Description("jq program, or a boolean block expression when mode is filter")),
		mcp.WithString("mode", mcp.Enum("jq", "filter"), mcp.Description("Query language (default: jq)")),
	)
}

func projectTool() mcp.Tool {
	return mcp.NewTool("mabel.project",
		mcp.WithDescription("Create, list, read, rename or delete stored projects and read their history"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("list", "get", "create", "rename", "delete", "revisions", "history"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("project_id", mcp.Description("Target project (all actions except list and create)")),
		mcp.WithString("name", mcp.Description("Project name for create and rename")),
		mcp.WithString("yaml", mcp.Description("Initial workflow YAML for create")),
		mcp.WithObject("filter", mcp.Description("List filter (name, limit, offset)")),
	)
}

func blockTool() mcp.Tool {
	return mcp.NewTool("mabel.block",
		mcp.WithDescription("Add, update, move or remove a block in a stored project"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("add", "update", "move", "remove"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Target project")),
		mcp.WithString("block_id", mcp.Description("Target block (update, move, remove)")),
		mcp.WithString("type", mcp.Enum("start", "ai", "logic", "python", "end"), mcp.Description("Block type for add")),
		mcp.WithObject("patch", mcp.Description("JSON merge patch for update")),
		mcp.WithObject("position", mcp.Description("Canvas position {x, y} for add and move")),
	)
}

func watchTool() mcp.Tool {
	return mcp.NewTool("mabel.watch",
		mcp.WithDescription("Subscribe this session to change notifications for a project"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project to watch")),
		mcp.WithBoolean("stop", mcp.Description("Stop watching instead")),
	)
}
