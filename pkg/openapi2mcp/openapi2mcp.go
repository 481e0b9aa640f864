// Package openapi2mcp exposes a REST API described by an OpenAPI 3.x or
// Swagger 2.0 document to an LLM as MCP (Model Context Protocol) tools.
//
// The conversion pipeline is:
//
//	raw document -> Normalize -> []EndpointDescriptor -> BuildTools -> []ToolDescriptor
//
// A Dispatcher then serves the tools in one of two modes. In full mode every
// endpoint is its own tool. In search mode only two meta-tools are exposed,
// search_endpoints and call_endpoint, and the endpoint tools are held
// internally and surfaced by ranking them against a free-text query.
//
// # Quick Start
//
//	doc, err := document.Parse(data)
//	if err != nil {
//		return err
//	}
//	document.ResolveRefs(doc)
//
//	spec, err := openapi2mcp.Normalize(doc)
//	if err != nil {
//		return err // *Error with Type == ErrorTypeSpecFormat
//	}
//
//	tools := openapi2mcp.BuildTools(spec.Endpoints, logger)
//	d := openapi2mcp.NewDispatcher(tools, openapi2mcp.DispatcherOptions{
//		Mode:    openapi2mcp.ModeSearch,
//		BaseURL: spec.BaseURL,
//		Auth:    authenticator,
//	})
//
//	srv := openapi2mcp.NewServer("petstore", "1.0.0", d)
//	openapi2mcp.ServeStdio(ctx, srv)
//
// Tool invocations never fail at the protocol level. Every problem that
// happens while serving one call (unknown tool, network error, non-2xx
// status, bad JSON) is returned as an error-flagged tool result.
package openapi2mcp

// Mode selects how endpoints are exposed as tools.
type Mode string

const (
	// ModeFull exposes one tool per endpoint.
	ModeFull Mode = "full"
	// ModeSearch exposes the search_endpoints and call_endpoint meta-tools.
	ModeSearch Mode = "search"
)

// ParseMode maps a configuration string to a Mode. Empty selects full mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeFull:
		return ModeFull, true
	case ModeSearch:
		return ModeSearch, true
	}
	return "", false
}

// ParameterDescriptor describes one path, query or header parameter.
// Type is one of string, number, boolean, array or object; integer is
// reported as number.
type ParameterDescriptor struct {
	Name        string
	Required    bool
	Description string
	Type        string
	Format      string
	Enum        []string
	Default     any
}

// BodyDescriptor describes an operation's request body. Schema is a plain
// JSON-Schema-shaped mapping taken from the source document.
type BodyDescriptor struct {
	Required    bool
	Description string
	ContentType string
	Schema      map[string]any
}

// ResponseDescriptor is informational and never used for dispatch.
type ResponseDescriptor struct {
	StatusCode  string
	Description string
	Schema      map[string]any
}

// EndpointDescriptor is the version-independent form of one operation.
type EndpointDescriptor struct {
	OperationID  string
	Method       string
	Path         string
	Summary      string
	Description  string
	PathParams   []ParameterDescriptor
	QueryParams  []ParameterDescriptor
	HeaderParams []ParameterDescriptor
	RequestBody  *BodyDescriptor
	Responses    []ResponseDescriptor
	Tags         []string
	Security     []string
}

// ToolDescriptor is a callable tool derived from an endpoint. Endpoint is
// shared with the normalized spec, not copied, and is nil for the search
// mode meta-tools.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
	Endpoint    *EndpointDescriptor
}

// NormalizedSpec is the output of Normalize.
type NormalizedSpec struct {
	// Version is the raw discriminant value, e.g. "3.0.3" or "2.0".
	Version    string
	BaseURL    string
	Title      string
	APIVersion string
	Endpoints  []*EndpointDescriptor
	// Warnings collects non-fatal problems found while normalizing.
	Warnings []string
}
