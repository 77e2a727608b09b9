package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolClient is the subset of an MCP client used to reach a tool server.
// *client.Client from mcp-go satisfies it.
type ToolClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// ToolInvoker routes tool calls to registered tool servers.
type ToolInvoker struct {
	mu      sync.RWMutex
	clients map[string]ToolClient
	logger  *slog.Logger
}

// NewToolInvoker creates an invoker with no servers.
func NewToolInvoker(logger *slog.Logger) *ToolInvoker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ToolInvoker{clients: make(map[string]ToolClient), logger: logger}
}

// Register binds a server name to a client, replacing any previous binding.
func (t *ToolInvoker) Register(server string, c ToolClient) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[server] = c
}

// Servers returns the registered server names, sorted.
func (t *ToolInvoker) Servers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.clients))
	for name := range t.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *ToolInvoker) client(server string) (ToolClient, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.clients[server]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolServerNotFound, server)
	}
	return c, nil
}

// Describe lists the tools of server as descriptors for the capability registry.
func (t *ToolInvoker) Describe(ctx context.Context, server string) ([]domain.ToolDescriptor, error) {
	c, err := t.client(server)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools of %s: %w", server, err)
	}
	out := make([]domain.ToolDescriptor, 0, len(res.Tools))
	for _, tool := range res.Tools {
		out = append(out, domain.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema(tool),
		})
	}
	return out, nil
}

func inputSchema(tool mcp.Tool) map[string]any {
	if len(tool.RawInputSchema) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(tool.RawInputSchema, &raw); err == nil {
			return raw
		}
	}
	schema := map[string]any{"type": tool.InputSchema.Type}
	if tool.InputSchema.Type == "" {
		schema["type"] = "object"
	}
	if len(tool.InputSchema.Properties) > 0 {
		schema["properties"] = tool.InputSchema.Properties
	}
	if len(tool.InputSchema.Required) > 0 {
		required := make([]any, len(tool.InputSchema.Required))
		for i, r := range tool.InputSchema.Required {
			required[i] = r
		}
		schema["required"] = required
	}
	return schema
}

// Call invokes tool on server. Structured content is preferred, then the
// first text block, then a list of {type, value} entries.
func (t *ToolInvoker) Call(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	c, err := t.client(server)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	t.logger.Debug("calling tool", "server", server, "tool", tool)
	res, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool %s/%s: %w", server, tool, err)
	}
	if res == nil {
		return nil, nil
	}
	if res.IsError {
		return nil, fmt.Errorf("tool %s/%s failed: %s", server, tool, firstText(res.Content))
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	if text := firstText(res.Content); text != "" {
		return text, nil
	}
	if len(res.Content) == 0 {
		return nil, nil
	}

	items := make([]any, 0, len(res.Content))
	for _, content := range res.Content {
		items = append(items, contentEntry(content))
	}
	return items, nil
}

func firstText(contents []mcp.Content) string {
	for _, c := range contents {
		switch tc := c.(type) {
		case mcp.TextContent:
			return tc.Text
		case *mcp.TextContent:
			return tc.Text
		}
	}
	return ""
}

func contentEntry(c mcp.Content) map[string]any {
	data, err := json.Marshal(c)
	if err != nil {
		return map[string]any{"type": "unknown", "value": fmt.Sprint(c)}
	}
	var fields map[string]any
	_ = json.Unmarshal(data, &fields)

	entry := map[string]any{"type": fields["type"]}
	for _, key := range []string{"text", "data", "resource", "uri"} {
		if v, ok := fields[key]; ok {
			entry["value"] = v
			break
		}
	}
	return entry
}
