package auth

import (
	"context"
	"net/http"
	"strings"
)

// Credentials are caller-supplied credentials forwarded from an inbound
// HTTP request. They take precedence over the configured token.
type Credentials struct {
	Token  string
	Source string
}

type contextKey string

const credentialsKey contextKey = "auth"

// UpstreamTokenHeader lets an HTTP client pass a token for the upstream API
// without it being mistaken for credentials of the proxy itself.
const UpstreamTokenHeader = "X-Upstream-Authorization"

// CredentialsFromRequest extracts forwarded credentials from an inbound
// request. It checks UpstreamTokenHeader, then an Authorization header with a
// Bearer or Basic scheme, then X-API-Key. It returns nil if none is present.
func CredentialsFromRequest(r *http.Request) *Credentials {
	if v := strings.TrimSpace(r.Header.Get(UpstreamTokenHeader)); v != "" {
		return &Credentials{Token: stripScheme(v), Source: UpstreamTokenHeader}
	}
	if v := strings.TrimSpace(r.Header.Get("Authorization")); v != "" {
		if token := stripScheme(v); token != v {
			return &Credentials{Token: token, Source: "Authorization"}
		}
	}
	if v := strings.TrimSpace(r.Header.Get(DefaultAPIKeyHeader)); v != "" {
		return &Credentials{Token: v, Source: DefaultAPIKeyHeader}
	}
	return nil
}

func stripScheme(v string) string {
	for _, scheme := range []string{"Bearer ", "Basic "} {
		if len(v) > len(scheme) && strings.EqualFold(v[:len(scheme)], scheme) {
			return strings.TrimSpace(v[len(scheme):])
		}
	}
	return v
}

// WithCredentials returns a copy of ctx carrying creds.
func WithCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey, creds)
}

// FromContext returns the credentials stored by WithCredentials.
func FromContext(ctx context.Context) (*Credentials, bool) {
	if ctx == nil {
		return nil, false
	}
	creds, ok := ctx.Value(credentialsKey).(*Credentials)
	return creds, ok && creds != nil
}
