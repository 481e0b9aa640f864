package openapi2mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/spf13/cast"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/auth"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
)

// Meta-tool names exposed in search mode.
const (
	SearchEndpointsTool = "search_endpoints"
	CallEndpointTool    = "call_endpoint"
)

// DefaultMaxResponseBytes caps how much of an API response is read.
const DefaultMaxResponseBytes = 10 << 20

// Result is the outcome of one tool invocation. Failures are reported with
// IsError set; CallTool never returns a Go error.
type Result struct {
	Text    string
	IsError bool
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Mode    Mode
	BaseURL string
	// Auth decorates every outbound API call. Nil sends calls unauthenticated.
	Auth auth.Provider
	// HTTPClient is the base client for API calls; its transport is wrapped
	// with Auth. Nil uses a client with no timeout.
	HTTPClient       *http.Client
	Logger           *log.Logger
	MaxResponseBytes int64
}

// Dispatcher routes tool invocations to API calls. It is built once per
// loaded spec and is safe for concurrent use; nothing in it changes after
// construction.
type Dispatcher struct {
	mode        Mode
	baseURL     string
	tools       []*ToolDescriptor
	byName      map[string]*ToolDescriptor
	metaTools   []*ToolDescriptor
	client      *http.Client
	logger      *log.Logger
	maxResponse int64
}

// NewDispatcher builds a dispatcher over tools.
func NewDispatcher(tools []*ToolDescriptor, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		mode:        opts.Mode,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		tools:       tools,
		byName:      make(map[string]*ToolDescriptor, len(tools)),
		logger:      opts.Logger,
		maxResponse: opts.MaxResponseBytes,
	}
	if d.mode == "" {
		d.mode = ModeFull
	}
	if d.logger == nil {
		d.logger = logging.Discard()
	}
	if d.maxResponse <= 0 {
		d.maxResponse = DefaultMaxResponseBytes
	}
	d.client = opts.HTTPClient
	if d.client == nil {
		d.client = &http.Client{}
	}
	if opts.Auth != nil {
		d.client = auth.Client(d.client, opts.Auth)
	}
	for _, t := range tools {
		if _, exists := d.byName[t.Name]; !exists {
			d.byName[t.Name] = t
		}
	}
	d.metaTools = searchMetaTools()
	return d
}

func (d *Dispatcher) Mode() Mode {
	return d.mode
}

func (d *Dispatcher) BaseURL() string {
	return d.baseURL
}

// Tools returns the endpoint tools, regardless of mode.
func (d *Dispatcher) Tools() []*ToolDescriptor {
	return d.tools
}

// ListTools returns the tools exposed to clients: every endpoint tool in
// full mode, the two meta-tools in search mode.
func (d *Dispatcher) ListTools() []*ToolDescriptor {
	if d.mode == ModeSearch {
		return d.metaTools
	}
	return d.tools
}

// Lookup finds an endpoint tool by exact name.
func (d *Dispatcher) Lookup(name string) (*ToolDescriptor, bool) {
	t, ok := d.byName[name]
	return t, ok
}

// CallTool serves one invocation. Every failure, including panics in the
// HTTP stack, is turned into an error-flagged Result.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) (res Result) {
	requestID := uuid.NewString()
	ctx = WithRequestID(ctx, requestID)
	if args == nil {
		args = map[string]any{}
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := NewErrorWithContext(ctx, ErrorTypeInternal, "tool invocation panicked", fmt.Sprint(r))
			err.LogError(d.logger)
			res = Result{Text: err.UserMessage(), IsError: true}
		}
		d.logger.Debug().
			Str("tool", name).
			Str("request_id", requestID).
			Bool("is_error", res.IsError).
			Dur("duration", time.Since(start)).
			Msg("tool call finished")
	}()

	if d.mode == ModeSearch {
		switch name {
		case SearchEndpointsTool:
			return d.searchEndpoints(ctx, args)
		case CallEndpointTool:
			return d.callEndpoint(ctx, args)
		}
		return d.fail(NewErrorWithContext(ctx, ErrorTypeUnknownTool,
			fmt.Sprintf("unknown tool %q", name),
			"available tools: "+SearchEndpointsTool+", "+CallEndpointTool))
	}

	tool, ok := d.byName[name]
	if !ok {
		return d.fail(NewErrorWithContext(ctx, ErrorTypeUnknownTool, fmt.Sprintf("unknown tool %q", name), ""))
	}
	return d.execute(ctx, tool, args, BuildOptions{})
}

func (d *Dispatcher) fail(err *Error) Result {
	err.LogError(d.logger)
	return Result{Text: err.UserMessage(), IsError: true}
}

// searchResult is one entry of the search_endpoints reply.
type searchResult struct {
	EndpointID  string         `json:"endpoint_id"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Score       int            `json:"score"`
	InputSchema map[string]any `json:"input_schema"`
}

type searchReply struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Results []searchResult `json:"results"`
	Hint    string         `json:"hint"`
}

func (d *Dispatcher) searchEndpoints(ctx context.Context, args map[string]any) Result {
	query := strings.TrimSpace(cast.ToString(args["query"]))
	if query == "" {
		return d.fail(NewErrorWithContext(ctx, ErrorTypeInvalidArguments, "missing required argument 'query'", ""))
	}
	limit, err := cast.ToIntE(args["limit"])
	if err != nil && args["limit"] != nil {
		return d.fail(WrapWithContext(ctx, err, ErrorTypeInvalidArguments, "argument 'limit' must be a number"))
	}

	matches := SearchTools(d.tools, SearchQuery{
		Query:   query,
		Tags:    stringList(args["tags"]),
		Methods: stringList(args["methods"]),
		Limit:   limit,
	})
	if len(matches) == 0 {
		tags := AvailableTags(d.tools)
		text := fmt.Sprintf("No endpoints found matching '%s'.", query)
		if len(tags) > 0 {
			text += " Available tags: " + strings.Join(tags, ", ")
		}
		return Result{Text: text}
	}

	reply := searchReply{
		Query: query,
		Total: len(matches),
		Hint:  "Invoke an endpoint with " + CallEndpointTool + ", passing endpoint_id plus the arguments from its input_schema.",
	}
	for _, m := range matches {
		ep := m.Tool.Endpoint
		reply.Results = append(reply.Results, searchResult{
			EndpointID:  m.Tool.Name,
			Method:      ep.Method,
			Path:        ep.Path,
			Summary:     ep.Summary,
			Description: ep.Description,
			Tags:        ep.Tags,
			Score:       m.Score,
			InputSchema: m.Tool.InputSchema,
		})
	}
	data, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return d.fail(WrapWithContext(ctx, err, ErrorTypeInternal, "failed to encode search results"))
	}
	return Result{Text: string(data)}
}

func (d *Dispatcher) callEndpoint(ctx context.Context, args map[string]any) Result {
	id := strings.TrimSpace(cast.ToString(args[EndpointIDArg]))
	if id == "" {
		return d.fail(NewErrorWithContext(ctx, ErrorTypeInvalidArguments,
			"missing required argument 'endpoint_id'",
			"use "+SearchEndpointsTool+" to find an endpoint id"))
	}

	tool, ok := d.byName[id]
	if !ok {
		var suggestions []string
		for _, t := range d.tools {
			if strings.Contains(t.Name, id) || strings.Contains(id, t.Name) {
				suggestions = append(suggestions, t.Name)
			}
		}
		err := NewErrorWithContext(ctx, ErrorTypeEndpointNotFound, fmt.Sprintf("endpoint %q not found", id), "")
		if len(suggestions) > 0 {
			err.Suggestions = suggestions
		} else {
			err.Details = "use " + SearchEndpointsTool + " to find available endpoints"
		}
		return d.fail(err)
	}
	return d.execute(ctx, tool, args, BuildOptions{SearchMode: true})
}

// stringList accepts a JSON array or a comma-separated string.
func stringList(v any) []string {
	switch tv := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, s := range strings.Split(tv, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return cast.ToStringSlice(v)
	}
}

func searchMetaTools() []*ToolDescriptor {
	return []*ToolDescriptor{
		{
			Name: SearchEndpointsTool,
			Description: "Search the API's endpoints by free-text query. Returns ranked matches with " +
				"their endpoint_id and input schema. Use " + CallEndpointTool + " to invoke one.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Words describing what you want to do, e.g. 'find pet by id'",
					},
					"tags": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Only return endpoints carrying one of these tags",
					},
					"methods": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Only return endpoints using one of these HTTP methods",
					},
					"limit": map[string]any{
						"type":        "number",
						"description": fmt.Sprintf("Maximum number of results (default %d)", DefaultSearchLimit),
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name: CallEndpointTool,
			Description: "Call an API endpoint found with " + SearchEndpointsTool + ". Pass endpoint_id " +
				"and the endpoint's arguments at the top level.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					EndpointIDArg: map[string]any{
						"type":        "string",
						"description": "The endpoint_id returned by " + SearchEndpointsTool,
					},
				},
				"required":             []string{EndpointIDArg},
				"additionalProperties": true,
			},
		},
	}
}
