package server

import (
	"context"
	"encoding/json"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/auth"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/openapi2mcp"
)

// DispatcherSource returns the dispatcher currently serving calls. It changes
// after a successful reload.
type DispatcherSource func() *openapi2mcp.Dispatcher

// ReloadResponse represents the response from a reload operation
type ReloadResponse struct {
	Success bool   `json:"success"`
	Tools   int    `json:"tools"`
	Error   string `json:"error,omitempty"`
}

// ToolInfo is one entry of the /tools listing.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// AuthContextFunc moves upstream credentials from the inbound HTTP request
// into the context seen by tool handlers. Nothing global is touched, so
// concurrent requests with different credentials do not interfere.
func AuthContextFunc() mcpserver.HTTPContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		if creds := auth.CredentialsFromRequest(r); creds != nil {
			return auth.WithCredentials(ctx, creds)
		}
		return ctx
	}
}

// HandleHealth handles the /health endpoint for health checks
func HandleHealth(current DispatcherSource, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := current()
		response := map[string]any{
			"status": "healthy",
			"tools":  len(d.ListTools()),
			"mode":   d.Mode(),
		}
		writeJSON(w, http.StatusOK, response, logger)
	}
}

// HandleTools lists the tools currently exposed to MCP clients.
func HandleTools(current DispatcherSource, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exposed := current().ListTools()
		tools := make([]ToolInfo, 0, len(exposed))
		for _, t := range exposed {
			tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
		writeJSON(w, http.StatusOK, tools, logger)
	}
}

// HandleReload handles the /reload endpoint. reloadFunc rebuilds the tool
// set and returns how many tools are now exposed.
func HandleReload(reloadFunc func(context.Context) (int, error), logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		tools, err := reloadFunc(r.Context())
		response := ReloadResponse{Success: err == nil, Tools: tools}
		status := http.StatusOK
		if err != nil {
			response.Error = err.Error()
			status = http.StatusInternalServerError
			logger.Error().Err(err).Msg("reload failed")
		} else {
			logger.Info().Int("tools", tools).Msg("reloaded spec")
		}
		writeJSON(w, status, response, logger)
	}
}

// MuxOptions wires the HTTP surface.
type MuxOptions struct {
	MCP      *mcpserver.MCPServer
	BasePath string
	Current  DispatcherSource
	// Reload is optional; without it /reload is not served.
	Reload func(context.Context) (int, error)
	Logger *log.Logger
}

// NewMux returns the handler serving the MCP endpoint plus /health, /tools
// and /reload.
func NewMux(opts MuxOptions) *http.ServeMux {
	basePath := opts.BasePath
	if basePath == "" {
		basePath = openapi2mcp.DefaultBasePath
	}
	mux := http.NewServeMux()
	mux.Handle(basePath, openapi2mcp.HandlerForStreamableHTTP(opts.MCP, basePath, AuthContextFunc()))
	mux.HandleFunc("GET /health", HandleHealth(opts.Current, opts.Logger))
	mux.HandleFunc("GET /tools", HandleTools(opts.Current, opts.Logger))
	if opts.Reload != nil {
		mux.HandleFunc("/reload", HandleReload(opts.Reload, opts.Logger))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}
