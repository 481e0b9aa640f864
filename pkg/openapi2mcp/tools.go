package openapi2mcp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
)

var (
	camelBoundary   = regexp.MustCompile(`([a-z])([A-Z])`)
	invalidNameChar = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// ToolName converts an operation id into a tool name matching
// ^[a-z][a-z0-9_]*$. getPetById becomes get_pet_by_id. Ids that do not start
// with an ASCII letter get an "op_" prefix so the result is still valid.
func ToolName(operationID string) string {
	name := camelBoundary.ReplaceAllString(operationID, "${1}_${2}")
	name = invalidNameChar.ReplaceAllString(name, "_")
	name = strings.ToLower(name)
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		name = "op_" + name
	}
	return name
}

// ToolDescription joins the summary (or "METHOD path"), the description when
// it differs from the summary, and the tag list with blank lines.
func ToolDescription(ep *EndpointDescriptor) string {
	var parts []string
	if ep.Summary != "" {
		parts = append(parts, ep.Summary)
	} else {
		parts = append(parts, ep.Method+" "+ep.Path)
	}
	if ep.Description != "" && ep.Description != ep.Summary {
		parts = append(parts, ep.Description)
	}
	if len(ep.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(ep.Tags, ", "))
	}
	return strings.Join(parts, "\n\n")
}

// BuildTool derives the tool for a single endpoint.
func BuildTool(ep *EndpointDescriptor) *ToolDescriptor {
	return &ToolDescriptor{
		Name:        ToolName(ep.OperationID),
		Description: ToolDescription(ep),
		InputSchema: BuildInputSchema(ep),
		Endpoint:    ep,
	}
}

// BuildTools derives one tool per endpoint, in endpoint order. When two
// endpoints map to the same tool name, later ones are renamed with a numeric
// suffix (_2, _3, ...) and a warning is logged.
func BuildTools(endpoints []*EndpointDescriptor, logger *log.Logger) []*ToolDescriptor {
	if logger == nil {
		logger = logging.Discard()
	}
	tools := make([]*ToolDescriptor, 0, len(endpoints))
	taken := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		tool := BuildTool(ep)
		if taken[tool.Name] {
			base := tool.Name
			for i := 2; ; i++ {
				candidate := fmt.Sprintf("%s_%d", base, i)
				if !taken[candidate] {
					tool.Name = candidate
					break
				}
			}
			logger.Warn().
				Str("tool", base).
				Str("renamed", tool.Name).
				Str("method", ep.Method).
				Str("path", ep.Path).
				Msg("tool name collision")
		}
		taken[tool.Name] = true
		tools = append(tools, tool)
	}
	return tools
}
