package openapi2mcp

import (
	"fmt"
	"io"
	"sort"
)

// DefaultTag groups tools whose endpoint has no tags.
const DefaultTag = "default"

// ToolSummary holds counts over a tool set.
type ToolSummary struct {
	Total    int            `json:"total"`
	ByMethod map[string]int `json:"by_method"`
	ByTag    map[string]int `json:"by_tag"`
}

// GroupByTag groups tools by their endpoint's tags. A tool with N tags
// appears in N groups; untagged tools appear under DefaultTag.
func GroupByTag(tools []*ToolDescriptor) map[string][]*ToolDescriptor {
	groups := map[string][]*ToolDescriptor{}
	for _, t := range tools {
		var tags []string
		if t.Endpoint != nil {
			tags = t.Endpoint.Tags
		}
		if len(tags) == 0 {
			groups[DefaultTag] = append(groups[DefaultTag], t)
			continue
		}
		for _, tag := range uniqueStrings(tags) {
			groups[tag] = append(groups[tag], t)
		}
	}
	return groups
}

// Summarize counts tools in total, per HTTP method and per tag group.
func Summarize(tools []*ToolDescriptor) ToolSummary {
	s := ToolSummary{
		Total:    len(tools),
		ByMethod: map[string]int{},
		ByTag:    map[string]int{},
	}
	for _, t := range tools {
		method := "NONE"
		if t.Endpoint != nil {
			method = t.Endpoint.Method
		}
		s.ByMethod[method]++
	}
	for tag, group := range GroupByTag(tools) {
		s.ByTag[tag] = len(group)
	}
	return s
}

// PrintToolSummary writes a human-readable summary of the tools that will be
// exposed.
//
// Output example:
//
//	Total tools: 12
//	Methods:
//	  GET: 7
//	  POST: 5
//	Tags:
//	  pets: 8
//	  store: 4
func PrintToolSummary(w io.Writer, tools []*ToolDescriptor) {
	s := Summarize(tools)
	fmt.Fprintf(w, "Total tools: %d\n", s.Total)
	if len(s.ByMethod) > 0 {
		fmt.Fprintln(w, "Methods:")
		for _, k := range sortedKeys(s.ByMethod) {
			fmt.Fprintf(w, "  %s: %d\n", k, s.ByMethod[k])
		}
	}
	if len(s.ByTag) > 0 {
		fmt.Fprintln(w, "Tags:")
		for _, k := range sortedKeys(s.ByTag) {
			fmt.Fprintf(w, "  %s: %d\n", k, s.ByTag[k])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
