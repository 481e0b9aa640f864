package openapi2mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// DefaultBasePath is where the streamable HTTP endpoint is mounted.
const DefaultBasePath = "/mcp"

// NewServer creates an MCP server and registers the dispatcher's exposed
// tools: every endpoint tool in full mode, the two meta-tools in search mode.
//
// Example usage:
//
//	d := openapi2mcp.NewDispatcher(tools, opts)
//	srv := openapi2mcp.NewServer("petstore", "1.0.0", d)
//	openapi2mcp.ServeStdio(ctx, srv)
func NewServer(name, version string, d *Dispatcher) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	RegisterTools(srv, d)
	return srv
}

// RegisterTools replaces the tools served by srv with the dispatcher's
// exposed tools. Handlers never return a protocol error; failures come back
// as error-flagged results.
func RegisterTools(srv *mcpserver.MCPServer, d *Dispatcher) {
	exposed := d.ListTools()
	tools := make([]mcpserver.ServerTool, 0, len(exposed))
	for _, t := range exposed {
		name := t.Name
		tools = append(tools, mcpserver.ServerTool{
			Tool: MCPTool(t),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return toCallToolResult(d.CallTool(ctx, name, req.GetArguments())), nil
			},
		})
	}
	srv.SetTools(tools...)
}

// MCPTool converts a tool descriptor into its MCP wire form.
func MCPTool(t *ToolDescriptor) mcp.Tool {
	schema, err := json.Marshal(t.InputSchema)
	if err != nil {
		schema = []byte(`{"type":"object","properties":{},"required":[]}`)
	}
	return mcp.NewToolWithRawSchema(t.Name, t.Description, schema)
}

func toCallToolResult(r Result) *mcp.CallToolResult {
	if r.IsError {
		return mcp.NewToolResultError(r.Text)
	}
	return mcp.NewToolResultText(r.Text)
}

// ServeStdio serves srv over stdin/stdout until ctx is cancelled or stdin
// is closed.
func ServeStdio(ctx context.Context, srv *mcpserver.MCPServer) error {
	return mcpserver.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout)
}

// HandlerForStreamableHTTP returns an http.Handler that serves srv at
// basePath using the streamable HTTP transport. contextFunc, if not nil, can
// attach request-scoped values (such as forwarded credentials) to the
// context tool handlers see.
//
// Example usage:
//
//	handler := openapi2mcp.HandlerForStreamableHTTP(srv, "/mcp", nil)
//	mux.Handle("/mcp", handler)
func HandlerForStreamableHTTP(srv *mcpserver.MCPServer, basePath string, contextFunc mcpserver.HTTPContextFunc) http.Handler {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	opts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath(basePath)}
	if contextFunc != nil {
		opts = append(opts, mcpserver.WithHTTPContextFunc(contextFunc))
	}
	return mcpserver.NewStreamableHTTPServer(srv, opts...)
}

// GetStreamableHTTPURL returns the client URL of the streamable HTTP
// endpoint.
//
//	url := openapi2mcp.GetStreamableHTTPURL(":8080", "/mcp")
//	// Returns: "http://localhost:8080/mcp"
func GetStreamableHTTPURL(addr, basePath string) string {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return "http://" + normalizeAddrToHost(addr) + basePath
}

// normalizeAddrToHost converts an addr (as used by net/http) to a host:port
// string suitable for URLs. ":8080" becomes "localhost:8080".
func normalizeAddrToHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost"
	}
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
