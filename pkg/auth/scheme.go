package auth

import (
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Scheme summarizes one security scheme declared by a spec.
type Scheme struct {
	Name string
	// Type is the strategy that can satisfy the scheme, or "" if none can.
	Type Type
	// In and ParamName locate an apiKey scheme's credential.
	In        string
	ParamName string
	// TokenURL is set for oauth2 schemes with a client-credentials flow.
	TokenURL string
}

// InspectSchemes lists the security schemes declared in doc, sorted by name.
func InspectSchemes(doc *openapi3.T) []Scheme {
	if doc == nil || doc.Components == nil || len(doc.Components.SecuritySchemes) == 0 {
		return nil
	}
	names := make([]string, 0, len(doc.Components.SecuritySchemes))
	for name := range doc.Components.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)

	var schemes []Scheme
	for _, name := range names {
		ref := doc.Components.SecuritySchemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		s := ref.Value
		info := Scheme{Name: name}
		switch s.Type {
		case "apiKey":
			info.Type = TypeAPIKey
			info.In = s.In
			info.ParamName = s.Name
		case "http":
			switch strings.ToLower(s.Scheme) {
			case "bearer":
				info.Type = TypeBearer
			case "basic":
				info.Type = TypeBasic
			}
		case "oauth2":
			info.Type = TypeOAuth2
			if s.Flows != nil && s.Flows.ClientCredentials != nil {
				info.TokenURL = s.Flows.ClientCredentials.TokenURL
			}
		case "openIdConnect":
			info.Type = TypeBearer
		}
		schemes = append(schemes, info)
	}
	return schemes
}

// SuggestConfig fills the strategy-specific fields of cfg that the spec can
// answer: for an empty or matching Type, the api key location and name and
// the OAuth2 token URL. Fields already set are kept.
func SuggestConfig(cfg Config, schemes []Scheme) Config {
	typ, err := ParseType(cfg.Type)
	if err != nil {
		return cfg
	}
	for _, s := range schemes {
		if s.Type == "" {
			continue
		}
		if cfg.Type != "" && s.Type != typ {
			continue
		}
		switch s.Type {
		case TypeAPIKey:
			if cfg.HeaderName == "" && s.In != "cookie" {
				cfg.HeaderName = s.ParamName
			}
			if cfg.In == "" && s.In == "query" {
				cfg.In = "query"
			}
		case TypeOAuth2:
			if cfg.TokenURL == "" {
				cfg.TokenURL = s.TokenURL
			}
		}
		return cfg
	}
	return cfg
}
