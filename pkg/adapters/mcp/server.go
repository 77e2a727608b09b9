package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SignaturesURI addresses the signature listing resource.
const SignaturesURI = "ason://signatures"

// Engine is the part of the ason client exposed over MCP.
type Engine interface {
	Send(ctx context.Context, task string) (string, error)
	ExecuteScript(ctx context.Context, script string, validate bool) (string, error)
	Signatures() string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server exposes an Engine as an MCP server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("ason-mcp", strings.TrimSpace(version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for an in-process client.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_task",
		mcp.WithDescription("Ask the application to perform a task described in natural language. A script is generated, validated and executed against the application."),
		mcp.WithString("task", mcp.Required(), mcp.Description("What to do")),
	), s.handleRunTask)

	s.mcpServer.AddTool(mcp.NewTool("execute_script",
		mcp.WithDescription("Execute a script body against the generated application surface and return its raw result."),
		mcp.WithString("script", mcp.Required(), mcp.Description("Go statements; the last return value is the result")),
		mcp.WithBoolean("validate", mcp.Description("Reject forbidden usages before running (default true)")),
	), s.handleExecuteScript)

	s.mcpServer.AddTool(mcp.NewTool("get_signatures",
		mcp.WithDescription("List the types, methods and tools available to scripts."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(s.engine.Signatures()), nil
	})
}

func (s *Server) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := strings.TrimSpace(request.GetString("task", ""))
	if task == "" {
		return mcp.NewToolResultError("task is required"), nil
	}
	out, err := s.engine.Send(ctx, task)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Error("MCP run_task failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handleExecuteScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := request.GetString("script", "")
	validate := request.GetBool("validate", true)

	out, err := s.engine.ExecuteScript(ctx, code, validate)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		msg := err.Error()
		if errors.Is(err, domain.ErrValidation) {
			s.logger.Warn("MCP execute_script rejected", "error", err)
		}
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SignaturesURI, "Script surface",
		mcp.WithResourceDescription("Types, methods and tools available to scripts"),
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SignaturesURI,
				MIMEType: "text/plain",
				Text:     s.engine.Signatures(),
			},
		}, nil
	})
}
