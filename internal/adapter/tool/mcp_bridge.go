package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"pocketsage/internal/domain"
	"pocketsage/internal/infra/config"
)

// MCPBridge connects to MCP servers and exposes their tools as remote
// tool descriptors.
type MCPBridge struct {
	servers []mcpServerConn
	tools   []domain.Tool
	logger  *slog.Logger
}

type mcpServerConn struct {
	name    string
	network bool // true for http transports
	client  mcpClient
}

// mcpClient abstracts the MCP client surface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// NewMCPBridge connects to all configured MCP servers and discovers
// their tools. Discovery tolerates individual server failures; it only
// errors when every server fails.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{logger: logger}

	for _, srv := range servers {
		conn, err := b.connectServer(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		b.servers = append(b.servers, *conn)
	}

	if err := b.discoverTools(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("discover tools: %w", err)
	}
	return b, nil
}

// newMCPBridgeWithClients builds a bridge from pre-built clients, for tests.
func newMCPBridgeWithClients(ctx context.Context, servers []mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: servers, logger: logger}
	if err := b.discoverTools(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MCPBridge) connectServer(ctx context.Context, srv config.MCPServer) (*mcpServerConn, error) {
	var c mcpClient
	network := false

	switch srv.Transport {
	case "stdio":
		stdioClient, err := mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
		c = stdioClient
	case "http":
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		httpClient := mcpclient.NewClient(t)
		if err := httpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = httpClient
		network = true
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "pocketsage",
		Version: "1.0.0",
	}

	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err := ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, domain.WrapOp("initialize", err)
		}
	}

	b.logger.Info("mcp server connected", "name", srv.Name, "transport", srv.Transport)
	return &mcpServerConn{name: srv.Name, network: network, client: c}, nil
}

func (b *MCPBridge) discoverTools(ctx context.Context) error {
	var errs []string
	successCount := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp server discovery failed, skipping",
				"server", srv.name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}

		for _, t := range result.Tools {
			tool := b.wrapTool(srv, t)
			b.tools = append(b.tools, tool)
			b.logger.Debug("mcp tool discovered",
				"server", srv.name, "tool", t.Name, "full_name", tool.Name)
		}

		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(result.Tools))
		successCount++
	}

	if successCount == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return nil
}

// wrapTool converts one discovered MCP tool into a remote tool descriptor.
func (b *MCPBridge) wrapTool(srv mcpServerConn, t mcp.Tool) domain.Tool {
	fullName := fmt.Sprintf("mcp_%s_%s", sanitizeName(srv.name), sanitizeName(t.Name))

	desc := t.Description
	if desc == "" {
		desc = fmt.Sprintf("Remote tool %q from server %q", t.Name, srv.name)
	}

	client := srv.client
	remoteName := t.Name
	logger := b.logger

	return domain.Tool{
		Name:            fullName,
		Description:     desc,
		Parameters:      paramSpecFromMCP(t.InputSchema),
		Source:          domain.SourceRemote,
		RequiresNetwork: srv.network,
		Execute: func(ctx context.Context, params map[string]any) (*domain.ToolResult, error) {
			callReq := mcp.CallToolRequest{}
			callReq.Params.Name = remoteName
			callReq.Params.Arguments = params

			logger.Debug("mcp tool call", "server", srv.name, "tool", remoteName)

			result, err := client.CallTool(ctx, callReq)
			if err != nil {
				return nil, domain.WrapOp("mcp call", err)
			}

			content := extractMCPContent(result)
			if result.IsError {
				return &domain.ToolResult{Error: content}, nil
			}
			return &domain.ToolResult{Success: true, Formatted: content}, nil
		},
	}
}

// paramSpecFromMCP maps an MCP input schema onto the local parameter
// spec, keeping type, description, and enum per property.
func paramSpecFromMCP(schema mcp.ToolInputSchema) domain.ParamSpec {
	spec := domain.ParamSpec{Required: schema.Required}
	if len(schema.Properties) == 0 {
		return spec
	}

	spec.Properties = make(map[string]domain.Param, len(schema.Properties))
	for name, raw := range schema.Properties {
		p := domain.Param{Type: "string"}
		if m, ok := raw.(map[string]any); ok {
			if t, ok := m["type"].(string); ok {
				p.Type = t
			}
			if d, ok := m["description"].(string); ok {
				p.Description = d
			}
			if enum, ok := m["enum"].([]any); ok {
				for _, e := range enum {
					if s, ok := e.(string); ok {
						p.Enum = append(p.Enum, s)
					}
				}
			}
		}
		spec.Properties[name] = p
	}
	return spec
}

// Tools returns all discovered remote tool descriptors.
func (b *MCPBridge) Tools() []domain.Tool {
	return b.tools
}

// Close shuts down all MCP server connections.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
}

// extractMCPContent flattens MCP result content into a string.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName replaces characters that aren't valid in tool names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// envSlice converts a map of env vars to KEY=VALUE form.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
