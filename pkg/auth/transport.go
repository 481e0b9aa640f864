package auth

import (
	"net/http"
)

// Decorate applies the provider's headers and query parameters to req in
// place. Auth headers are set after whatever the caller already put on the
// request, so on a name collision the auth header wins (last write wins).
func Decorate(req *http.Request, p Provider) {
	ctx := req.Context()
	for key, value := range p.GetAuthHeaders(ctx) {
		req.Header.Set(key, value)
	}
	if params := p.GetAuthQueryParams(ctx); len(params) > 0 {
		q := req.URL.Query()
		for key, value := range params {
			q.Set(key, value)
		}
		req.URL.RawQuery = q.Encode()
	}
}

// Transport is an http.RoundTripper that decorates a clone of every request
// before handing it to Base.
type Transport struct {
	Base     http.RoundTripper
	Provider Provider
}

// NewTransport wraps base, defaulting to http.DefaultTransport.
func NewTransport(base http.RoundTripper, p Provider) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Provider: p}
}

// RoundTrip executes a single HTTP transaction with auth applied.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	cloned := req.Clone(req.Context())
	Decorate(cloned, t.Provider)
	return t.Base.RoundTrip(cloned)
}

// Client returns an *http.Client whose transport applies p. The client's
// timeout is left at zero; callers that want one set it themselves.
func Client(base *http.Client, p Provider) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.Transport = NewTransport(c.Transport, p)
	return c
}
