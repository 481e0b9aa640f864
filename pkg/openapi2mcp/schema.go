package openapi2mcp

import "sort"

// BuildInputSchema converts an endpoint's path and query parameters and its
// request body into the JSON Schema object used as a tool's input schema.
//
// The result always has "type": "object", a "properties" map and a
// "required" list (possibly empty) whose entries are all property keys.
//
// Object bodies with explicit properties are flattened into the top level so
// simple bodies need no extra nesting; a flattened property is required only
// if the body schema lists it and the body itself is required. Any other body
// becomes a single "body" property. Header parameters are not part of the
// schema.
//
// Example:
//
//	schema := openapi2mcp.BuildInputSchema(ep)
//	// {"type": "object", "properties": {"petId": {...}}, "required": ["petId"]}
func BuildInputSchema(ep *EndpointDescriptor) map[string]any {
	properties := map[string]any{}
	var required []string
	addRequired := func(name string) {
		for _, r := range required {
			if r == name {
				return
			}
		}
		required = append(required, name)
	}

	for _, group := range [][]ParameterDescriptor{ep.PathParams, ep.QueryParams} {
		for _, p := range group {
			properties[p.Name] = parameterProperty(p)
			if p.Required {
				addRequired(p.Name)
			}
		}
	}

	if body := ep.RequestBody; body != nil {
		if bodyProps, ok := objectProperties(body.Schema); ok {
			bodyRequired := stringSet(body.Schema["required"])
			names := make([]string, 0, len(bodyProps))
			for name := range bodyProps {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				prop := bodyProps[name]
				if _, exists := properties[name]; exists {
					// a parameter of the same name wins; BuildRequest routes the value there
					continue
				}
				properties[name] = prop
				if body.Required && bodyRequired[name] {
					addRequired(name)
				}
			}
		} else {
			prop := make(map[string]any, len(body.Schema)+1)
			for k, v := range body.Schema {
				prop[k] = v
			}
			prop["description"] = body.Description
			if body.Description == "" {
				prop["description"] = "Request body"
			}
			properties["body"] = prop
			if body.Required {
				addRequired("body")
			}
		}
	}

	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func parameterProperty(p ParameterDescriptor) map[string]any {
	prop := map[string]any{
		"type":        p.Type,
		"description": p.Description,
	}
	if p.Format != "" {
		prop["format"] = p.Format
	}
	if len(p.Enum) > 0 {
		prop["enum"] = p.Enum
	}
	if p.Default != nil {
		prop["default"] = p.Default
	}
	return prop
}

// objectProperties returns the properties map of an object schema.
func objectProperties(schema map[string]any) (map[string]any, bool) {
	if t, _ := schema["type"].(string); t != "object" {
		return nil, false
	}
	props, ok := schema["properties"].(map[string]any)
	return props, ok
}

func stringSet(v any) map[string]bool {
	set := map[string]bool{}
	switch vals := v.(type) {
	case []any:
		for _, e := range vals {
			if s, ok := e.(string); ok {
				set[s] = true
			}
		}
	case []string:
		for _, s := range vals {
			set[s] = true
		}
	}
	return set
}
