package openapi2mcp

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cast"
	"github.com/yosida95/uritemplate/v3"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/document"
)

// httpMethods lists the methods that produce endpoints. Path item keys are
// matched case-insensitively; trace and extension keys are ignored.
var httpMethods = map[string]bool{
	"get":     true,
	"post":    true,
	"put":     true,
	"patch":   true,
	"delete":  true,
	"head":    true,
	"options": true,
}

const defaultContentType = "application/json"

// specVariant hides the differences between Swagger 2.0 and OpenAPI 3.x so
// the walk over paths and operations is written once.
type specVariant interface {
	baseURL() string
	// parameterSchema returns the object holding type, format, enum and
	// default for a parameter.
	parameterSchema(param *document.Object) *document.Object
	requestBody(op *document.Object, params []*document.Object) *BodyDescriptor
	responseSchema(resp *document.Object) map[string]any
}

// Normalize converts a dereferenced OpenAPI 3.x or Swagger 2.0 document into
// endpoint descriptors. Documents with any other shape fail with an *Error of
// type ErrorTypeSpecFormat.
func Normalize(doc *document.Object) (*NormalizedSpec, error) {
	if doc == nil {
		return nil, NewError(ErrorTypeSpecFormat, "document is empty", "")
	}

	spec := &NormalizedSpec{}
	var variant specVariant
	switch {
	case strings.HasPrefix(doc.String("openapi"), "3."):
		spec.Version = doc.String("openapi")
		variant = v3Variant{doc: doc}
	case isSwagger2(doc):
		spec.Version = "2.0"
		variant = v2Variant{doc: doc}
	default:
		return nil, NewError(ErrorTypeSpecFormat,
			"unsupported document format",
			"expected an 'openapi' field starting with \"3.\" or 'swagger: \"2.0\"'")
	}

	info := doc.Object("info")
	spec.Title = info.String("title")
	spec.APIVersion = cast.ToString(valueOf(info, "version"))
	spec.BaseURL = variant.baseURL()

	paths := doc.Object("paths")
	for _, path := range paths.Keys() {
		item := paths.Object(path)
		if item == nil {
			spec.Warnings = append(spec.Warnings, fmt.Sprintf("path %q: not an object, skipped", path))
			continue
		}
		shared := objects(item.Array("parameters"))
		for _, key := range item.Keys() {
			method := strings.ToLower(key)
			if !httpMethods[method] {
				continue
			}
			op := item.Object(key)
			if op == nil {
				spec.Warnings = append(spec.Warnings, fmt.Sprintf("%s %s: operation is not an object, skipped", strings.ToUpper(method), path))
				continue
			}
			ep := buildEndpoint(variant, doc, path, method, op, shared)
			spec.Warnings = append(spec.Warnings, templateWarnings(ep)...)
			spec.Endpoints = append(spec.Endpoints, ep)
		}
	}
	return spec, nil
}

func isSwagger2(doc *document.Object) bool {
	v, ok := doc.Get("swagger")
	if !ok {
		return false
	}
	switch s := v.(type) {
	case string:
		return s == "2.0"
	case float64:
		// unquoted "swagger: 2.0" in YAML
		return s == 2
	}
	return false
}

func buildEndpoint(v specVariant, doc *document.Object, path, method string, op *document.Object, shared []*document.Object) *EndpointDescriptor {
	ep := &EndpointDescriptor{
		OperationID: op.String("operationId"),
		Method:      strings.ToUpper(method),
		Path:        path,
		Summary:     op.String("summary"),
		Description: op.String("description"),
		Tags:        stringSlice(op.Array("tags")),
		Security:    securityNames(doc, op),
	}
	if ep.OperationID == "" {
		ep.OperationID = GenerateOperationID(method, path)
	}

	// Path level parameters come first; duplicates by name are kept.
	params := append(append([]*document.Object{}, shared...), objects(op.Array("parameters"))...)
	for _, p := range params {
		switch p.String("in") {
		case "path":
			ep.PathParams = append(ep.PathParams, describeParameter(v, p))
		case "query":
			ep.QueryParams = append(ep.QueryParams, describeParameter(v, p))
		case "header":
			ep.HeaderParams = append(ep.HeaderParams, describeParameter(v, p))
		}
	}

	ep.RequestBody = v.requestBody(op, params)

	responses := op.Object("responses")
	for _, code := range responses.Keys() {
		resp := responses.Object(code)
		if resp == nil {
			continue
		}
		ep.Responses = append(ep.Responses, ResponseDescriptor{
			StatusCode:  code,
			Description: resp.String("description"),
			Schema:      v.responseSchema(resp),
		})
	}
	return ep
}

func describeParameter(v specVariant, p *document.Object) ParameterDescriptor {
	schema := v.parameterSchema(p)
	pd := ParameterDescriptor{
		Name:        p.String("name"),
		Required:    p.Bool("required"),
		Description: p.String("description"),
		Type:        normalizeType(valueOf(schema, "type")),
		Format:      schema.String("format"),
	}
	for _, e := range schema.Array("enum") {
		if e == nil {
			continue
		}
		pd.Enum = append(pd.Enum, cast.ToString(e))
	}
	if def, ok := schema.Get("default"); ok {
		pd.Default = document.ToPlain(def)
	}
	return pd
}

// normalizeType maps a schema type to string, number, boolean, array or
// object. A type list (OpenAPI 3.1) uses its first non-null entry.
func normalizeType(t any) string {
	var s string
	switch tv := t.(type) {
	case string:
		s = tv
	case []any:
		for _, e := range tv {
			if es, ok := e.(string); ok && es != "null" {
				s = es
				break
			}
		}
	}
	switch s {
	case "":
		return "string"
	case "integer":
		return "number"
	}
	return s
}

func securityNames(doc, op *document.Object) []string {
	reqs, ok := op.Get("security")
	if !ok {
		reqs, _ = doc.Get("security")
	}
	arr, _ := reqs.([]any)

	var names []string
	seen := map[string]bool{}
	for _, r := range objects(arr) {
		for _, name := range r.Keys() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// templateWarnings reports placeholders in the path template that have no
// matching declared path parameter. Such placeholders stay in the built URL.
func templateWarnings(ep *EndpointDescriptor) []string {
	tmpl, err := uritemplate.New(ep.Path)
	if err != nil {
		return nil
	}
	declared := map[string]bool{}
	for _, p := range ep.PathParams {
		declared[p.Name] = true
	}
	var warnings []string
	for _, name := range tmpl.Varnames() {
		if !declared[name] {
			warnings = append(warnings, fmt.Sprintf("%s %s: path placeholder {%s} has no declared path parameter", ep.Method, ep.Path, name))
		}
	}
	return warnings
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)
var placeholder = regexp.MustCompile(`\{([^{}]*)\}`)

// GenerateOperationID derives an operation id from method and path for
// operations that do not declare one. GET /pets/{petId} becomes getPetsPetId.
func GenerateOperationID(method, path string) string {
	s := placeholder.ReplaceAllStringFunc(path, func(m string) string {
		return capitalize(m[1 : len(m)-1])
	})
	s = nonAlphanumeric.ReplaceAllString(s, " ")

	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, word := range strings.Fields(s) {
		b.WriteString(capitalize(word))
	}
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// v3Variant reads OpenAPI 3.x documents.
type v3Variant struct {
	doc *document.Object
}

func (v v3Variant) baseURL() string {
	servers := objects(v.doc.Array("servers"))
	if len(servers) == 0 || servers[0].String("url") == "" {
		return "http://localhost"
	}
	url := servers[0].String("url")
	vars := servers[0].Object("variables")
	for _, name := range vars.Keys() {
		def := cast.ToString(valueOf(vars.Object(name), "default"))
		url = strings.ReplaceAll(url, "{"+name+"}", def)
	}
	return strings.TrimSuffix(url, "/")
}

func (v v3Variant) parameterSchema(param *document.Object) *document.Object {
	if s := param.Object("schema"); s != nil {
		return s
	}
	return document.NewObject()
}

func (v v3Variant) requestBody(op *document.Object, _ []*document.Object) *BodyDescriptor {
	rb := op.Object("requestBody")
	content := rb.Object("content")
	if content.Len() == 0 {
		return nil
	}
	contentType := content.Keys()[0]
	return &BodyDescriptor{
		Required:    rb.Bool("required"),
		Description: rb.String("description"),
		ContentType: contentType,
		Schema:      plainSchema(content.Object(contentType).Object("schema")),
	}
}

func (v v3Variant) responseSchema(resp *document.Object) map[string]any {
	content := resp.Object("content")
	if content.Len() == 0 {
		return nil
	}
	return plainSchema(content.Object(content.Keys()[0]).Object("schema"))
}

// v2Variant reads Swagger 2.0 documents.
type v2Variant struct {
	doc *document.Object
}

func (v v2Variant) baseURL() string {
	scheme := "https"
	if schemes := stringSlice(v.doc.Array("schemes")); len(schemes) > 0 {
		scheme = schemes[0]
	}
	host := v.doc.String("host")
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host + strings.TrimSuffix(v.doc.String("basePath"), "/")
}

func (v v2Variant) parameterSchema(param *document.Object) *document.Object {
	return param
}

func (v v2Variant) requestBody(op *document.Object, params []*document.Object) *BodyDescriptor {
	for _, p := range params {
		if p.String("in") != "body" {
			continue
		}
		contentType := defaultContentType
		consumes := stringSlice(op.Array("consumes"))
		if len(consumes) == 0 {
			consumes = stringSlice(v.doc.Array("consumes"))
		}
		if len(consumes) > 0 {
			contentType = consumes[0]
		}
		return &BodyDescriptor{
			Required:    p.Bool("required"),
			Description: p.String("description"),
			ContentType: contentType,
			Schema:      plainSchema(p.Object("schema")),
		}
	}
	return nil
}

func (v v2Variant) responseSchema(resp *document.Object) map[string]any {
	return plainSchema(resp.Object("schema"))
}

func plainSchema(s *document.Object) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	m, _ := document.ToPlain(s).(map[string]any)
	return m
}

func objects(arr []any) []*document.Object {
	out := make([]*document.Object, 0, len(arr))
	for _, e := range arr {
		if o, ok := e.(*document.Object); ok {
			out = append(out, o)
		}
	}
	return out
}

func stringSlice(arr []any) []string {
	var out []string
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func valueOf(o *document.Object, key string) any {
	v, _ := o.Get(key)
	return v
}
