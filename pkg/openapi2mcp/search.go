package openapi2mcp

import (
	"sort"
	"strings"
)

// DefaultSearchLimit is the number of results returned when no limit is given.
const DefaultSearchLimit = 10

const (
	fullQueryScore = 10
	wordScore      = 5
)

// SearchQuery describes one search_endpoints request.
type SearchQuery struct {
	Query   string
	Tags    []string
	Methods []string
	Limit   int
}

// SearchMatch is a ranked tool.
type SearchMatch struct {
	Tool  *ToolDescriptor
	Score int
}

// SearchTools ranks tools against q.
//
// Candidates are first restricted to tools sharing a tag with q.Tags and
// using a method in q.Methods (both case-insensitive, empty means no
// restriction). Each candidate is scored over its name, description, path,
// summary, operation id and tags: a field containing the whole query scores
// 10, and each query word the field contains scores 5 more. Tools scoring 0
// are dropped, the rest are sorted by descending score with ties kept in
// input order, and at most q.Limit (default 10) are returned.
func SearchTools(tools []*ToolDescriptor, q SearchQuery) []SearchMatch {
	query := strings.ToLower(strings.TrimSpace(q.Query))
	words := strings.Fields(query)
	tags := lowerSet(q.Tags)
	methods := lowerSet(q.Methods)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var matches []SearchMatch
	for _, t := range tools {
		ep := t.Endpoint
		if ep == nil {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(ep, tags) {
			continue
		}
		if len(methods) > 0 && !methods[strings.ToLower(ep.Method)] {
			continue
		}

		score := 0
		for _, field := range searchFields(t) {
			score += scoreField(strings.ToLower(field), query, words)
		}
		if score > 0 {
			matches = append(matches, SearchMatch{Tool: t, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func searchFields(t *ToolDescriptor) []string {
	ep := t.Endpoint
	fields := []string{t.Name, t.Description, ep.Path, ep.Summary, ep.OperationID}
	return append(fields, ep.Tags...)
}

func scoreField(field, query string, words []string) int {
	if field == "" || query == "" {
		return 0
	}
	score := 0
	if strings.Contains(field, query) {
		score += fullQueryScore
	}
	for _, w := range words {
		if strings.Contains(field, w) {
			score += wordScore
		}
	}
	return score
}

// AvailableTags lists the distinct endpoint tags across tools, sorted.
func AvailableTags(tools []*ToolDescriptor) []string {
	seen := map[string]bool{}
	var tags []string
	for _, t := range tools {
		if t.Endpoint == nil {
			continue
		}
		for _, tag := range t.Endpoint.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags
}
