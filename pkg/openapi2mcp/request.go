package openapi2mcp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cast"
)

// EndpointIDArg is the call_endpoint argument naming the target tool. It is
// never forwarded to the API.
const EndpointIDArg = "endpoint_id"

// BodyArg is the argument that, when present, is sent as the request body
// verbatim.
const BodyArg = "body"

// BuildOptions tunes BuildRequest for the dispatch mode.
type BuildOptions struct {
	// SearchMode excludes endpoint_id from residual body collection and
	// defaults Content-Type to application/json for assembled bodies.
	SearchMode bool
}

// BuiltRequest is an HTTP request ready to be sent.
type BuiltRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// BuildRequest turns a flat argument map into an HTTP request for ep.
//
// Path parameters present in args replace their {name} placeholder with the
// percent-encoded value; absent ones leave the placeholder in the URL. Query
// parameters present in args are appended in declaration order.
//
// When the endpoint declares a request body it is taken from args["body"] if
// that key exists. Otherwise every argument that is not a declared path or
// query parameter is collected into a JSON object. Declared header parameters
// found in args are sent as headers.
func BuildRequest(baseURL string, ep *EndpointDescriptor, args map[string]any, opts BuildOptions) (*BuiltRequest, error) {
	path := ep.Path
	routed := map[string]bool{}
	for _, p := range ep.PathParams {
		routed[p.Name] = true
		v, ok := args[p.Name]
		if !ok {
			continue
		}
		path = strings.Replace(path, "{"+p.Name+"}", url.PathEscape(stringify(v)), 1)
	}

	var query []string
	for _, p := range ep.QueryParams {
		routed[p.Name] = true
		v, ok := args[p.Name]
		if !ok {
			continue
		}
		query = append(query, url.QueryEscape(p.Name)+"="+url.QueryEscape(stringify(v)))
	}

	req := &BuiltRequest{
		Method:  strings.ToUpper(ep.Method),
		URL:     baseURL + path,
		Headers: map[string]string{},
	}
	if len(query) > 0 {
		req.URL += "?" + strings.Join(query, "&")
	}

	if ep.RequestBody != nil {
		body, ok := args[BodyArg]
		if !ok {
			residual := map[string]any{}
			for k, v := range args {
				if routed[k] || (opts.SearchMode && k == EndpointIDArg) {
					continue
				}
				residual[k] = v
			}
			if len(residual) > 0 {
				body, ok = residual, true
			}
		}
		if ok {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, NewError(ErrorTypeInvalidArguments, "request body is not JSON-serializable", err.Error())
			}
			req.Body = data
		}
	}

	switch {
	case ep.RequestBody != nil && ep.RequestBody.ContentType != "":
		req.Headers["Content-Type"] = ep.RequestBody.ContentType
	case opts.SearchMode && req.Body != nil:
		req.Headers["Content-Type"] = defaultContentType
	}

	for _, p := range ep.HeaderParams {
		if v, ok := args[p.Name]; ok {
			req.Headers[p.Name] = stringify(v)
		}
	}
	return req, nil
}

// stringify renders an argument value for a URL or header. Lists are
// comma-joined (the OpenAPI "simple"/"form" style without explode) and
// objects are JSON-encoded.
func stringify(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []any:
		parts := make([]string, len(tv))
		for i, e := range tv {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(tv, ",")
	case map[string]any:
		data, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprint(tv)
		}
		return string(data)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
