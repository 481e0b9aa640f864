// Package auth computes the credentials attached to outbound API calls.
//
// An Authenticator is configured once per server with one strategy (none,
// apikey, bearer, basic or oauth2). Header computation is a pure step
// (Headers); applying it to requests is done by Decorate, Transport or
// Client, all of which let the auth headers overwrite any header of the same
// name already on the request.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
)

// Type selects an authentication strategy.
type Type string

const (
	TypeNone   Type = "none"
	TypeAPIKey Type = "apikey"
	TypeBearer Type = "bearer"
	TypeBasic  Type = "basic"
	TypeOAuth2 Type = "oauth2"
)

// DefaultAPIKeyHeader is used when an apikey strategy names no header.
const DefaultAPIKeyHeader = "X-API-Key"

// ParseType maps a configuration string to a Type. Empty means none.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeNone, nil
	case TypeNone, TypeAPIKey, TypeBearer, TypeBasic, TypeOAuth2:
		return t, nil
	case "api_key", "api-key":
		return TypeAPIKey, nil
	default:
		return "", fmt.Errorf("unknown auth type %q (want none, apikey, bearer, basic or oauth2)", s)
	}
}

// Config is the authentication part of the proxy configuration.
type Config struct {
	Type       string `toml:"type"`
	Token      string `toml:"token"`
	HeaderName string `toml:"header_name"`
	// In is where an apikey goes: "header" (default) or "query".
	In           string   `toml:"in"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
}

// Provider supplies request-scoped auth headers and query parameters.
type Provider interface {
	GetAuthHeaders(ctx context.Context) map[string]string
	GetAuthQueryParams(ctx context.Context) map[string]string
}

// Authenticator implements Provider for a single Config.
type Authenticator struct {
	cfg        Config
	typ        Type
	httpClient *http.Client
	logger     *log.Logger

	mu    sync.RWMutex
	token string
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the client used for the OAuth2 token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) { a.httpClient = c }
}

// WithLogger sets the logger used to report token exchange failures.
func WithLogger(l *log.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// New validates the strategy name and returns an Authenticator.
func New(cfg Config, opts ...Option) (*Authenticator, error) {
	typ, err := ParseType(cfg.Type)
	if err != nil {
		return nil, err
	}
	a := &Authenticator{
		cfg:        cfg,
		typ:        typ,
		token:      cfg.Token,
		httpClient: http.DefaultClient,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Type returns the configured strategy.
func (a *Authenticator) Type() Type {
	return a.typ
}

// Token returns the current token, which for oauth2 may have been set by
// EnsureToken.
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// SetToken replaces the current token.
func (a *Authenticator) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Headers computes the auth headers for the configured credentials. It does
// no I/O.
func (a *Authenticator) Headers() map[string]string {
	return a.headersFor(a.Token())
}

func (a *Authenticator) headersFor(token string) map[string]string {
	headers := map[string]string{}
	switch a.typ {
	case TypeBearer, TypeOAuth2:
		if token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	case TypeAPIKey:
		if token != "" && !a.apiKeyInQuery() {
			headers[a.apiKeyName()] = token
		}
	case TypeBasic:
		if a.cfg.Username != "" && a.cfg.Password != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(a.cfg.Username + ":" + a.cfg.Password))
			headers["Authorization"] = "Basic " + cred
		}
	}
	return headers
}

// GetAuthHeaders returns Headers, except that a token carried in ctx by
// WithCredentials replaces the configured one.
func (a *Authenticator) GetAuthHeaders(ctx context.Context) map[string]string {
	creds, ok := FromContext(ctx)
	if !ok || creds.Token == "" {
		return a.Headers()
	}
	if a.typ == TypeBasic {
		// forwarded basic credentials are already encoded
		return map[string]string{"Authorization": "Basic " + creds.Token}
	}
	return a.headersFor(creds.Token)
}

// GetAuthQueryParams returns the api key as a query parameter when the
// apikey strategy is configured with In = "query".
func (a *Authenticator) GetAuthQueryParams(ctx context.Context) map[string]string {
	if a.typ != TypeAPIKey || !a.apiKeyInQuery() {
		return nil
	}
	token := a.Token()
	if creds, ok := FromContext(ctx); ok && creds.Token != "" {
		token = creds.Token
	}
	if token == "" {
		return nil
	}
	return map[string]string{a.apiKeyName(): token}
}

func (a *Authenticator) apiKeyName() string {
	if a.cfg.HeaderName != "" {
		return a.cfg.HeaderName
	}
	if a.apiKeyInQuery() {
		return "api_key"
	}
	return DefaultAPIKeyHeader
}

func (a *Authenticator) apiKeyInQuery() bool {
	return strings.EqualFold(a.cfg.In, "query")
}
