package openapi2mcp

import (
	"fmt"
	"regexp"
	"strings"
)

// FilterOptions restricts which endpoints become tools. Zero values keep
// everything.
type FilterOptions struct {
	// Tags keeps endpoints carrying at least one of these tags (case-insensitive).
	Tags []string
	// Include, when set, keeps only endpoints whose operation id or path matches.
	Include string
	// Exclude drops endpoints whose operation id or path matches.
	Exclude string
}

// FilterEndpoints applies opts to endpoints, preserving order.
func FilterEndpoints(endpoints []*EndpointDescriptor, opts FilterOptions) ([]*EndpointDescriptor, error) {
	include, err := compileOptional(opts.Include)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exclude, err := compileOptional(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	tags := lowerSet(opts.Tags)

	var out []*EndpointDescriptor
	for _, ep := range endpoints {
		if len(tags) > 0 && !hasAnyTag(ep, tags) {
			continue
		}
		if include != nil && !matchesEndpoint(include, ep) {
			continue
		}
		if exclude != nil && matchesEndpoint(exclude, ep) {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

func matchesEndpoint(re *regexp.Regexp, ep *EndpointDescriptor) bool {
	return re.MatchString(ep.OperationID) || re.MatchString(ep.Path)
}

func hasAnyTag(ep *EndpointDescriptor, tags map[string]bool) bool {
	for _, t := range ep.Tags {
		if tags[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			set[strings.ToLower(v)] = true
		}
	}
	return set
}
