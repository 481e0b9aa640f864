package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want map[string]string
	}{
		{"none", Config{Type: "none"}, map[string]string{}},
		{"empty type", Config{}, map[string]string{}},
		{"bearer", Config{Type: "bearer", Token: "abc"}, map[string]string{"Authorization": "Bearer abc"}},
		{"bearer without token", Config{Type: "bearer"}, map[string]string{}},
		{"apikey custom header", Config{Type: "apikey", Token: "k", HeaderName: "X-Foo"}, map[string]string{"X-Foo": "k"}},
		{"apikey default header", Config{Type: "apikey", Token: "k"}, map[string]string{"X-API-Key": "k"}},
		{"apikey in query", Config{Type: "apikey", Token: "k", In: "query"}, map[string]string{}},
		{"basic", Config{Type: "basic", Username: "u", Password: "p"},
			map[string]string{"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))}},
		{"basic missing password", Config{Type: "basic", Username: "u"}, map[string]string{}},
		{"oauth2 with token", Config{Type: "oauth2", Token: "t"}, map[string]string{"Authorization": "Bearer t"}},
		{"oauth2 without token", Config{Type: "oauth2"}, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Headers())
		})
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("Bearer")
	require.NoError(t, err)
	assert.Equal(t, TypeBearer, typ)

	typ, err = ParseType("api_key")
	require.NoError(t, err)
	assert.Equal(t, TypeAPIKey, typ)

	_, err = New(Config{Type: "kerberos"})
	require.Error(t, err)
}

func TestGetAuthHeadersPrefersForwardedCredentials(t *testing.T) {
	a, err := New(Config{Type: "bearer", Token: "configured"})
	require.NoError(t, err)

	ctx := WithCredentials(context.Background(), &Credentials{Token: "forwarded"})
	assert.Equal(t, map[string]string{"Authorization": "Bearer forwarded"}, a.GetAuthHeaders(ctx))
	assert.Equal(t, map[string]string{"Authorization": "Bearer configured"}, a.GetAuthHeaders(context.Background()))
}

func TestCredentialsFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   *Credentials
	}{
		{"none", nil, nil},
		{"upstream header", map[string]string{UpstreamTokenHeader: "Bearer up"}, &Credentials{Token: "up", Source: UpstreamTokenHeader}},
		{"bearer", map[string]string{"Authorization": "Bearer tok"}, &Credentials{Token: "tok", Source: "Authorization"}},
		{"unknown scheme ignored", map[string]string{"Authorization": "Digest x"}, nil},
		{"api key", map[string]string{"X-API-Key": "k"}, &Credentials{Token: "k", Source: "X-API-Key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, CredentialsFromRequest(r))
		})
	}
}

func TestDecorateLastWriteWins(t *testing.T) {
	a, err := New(Config{Type: "bearer", Token: "abc"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://api.test/pets", nil)
	req.Header.Set("Authorization", "Bearer caller")
	req.Header.Set("X-Trace", "1")
	Decorate(req, a)

	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	assert.Equal(t, "1", req.Header.Get("X-Trace"))
}

func TestTransportDoesNotMutateCallerRequest(t *testing.T) {
	var gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotQuery = r.URL.Query().Get("api_key")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	header, err := New(Config{Type: "apikey", Token: "secret"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/x", nil)
	require.NoError(t, err)

	resp, err := Client(srv.Client(), header).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "secret", gotKey)
	assert.Empty(t, req.Header.Get("X-API-Key"))

	query, err := New(Config{Type: "apikey", Token: "q", In: "query"})
	require.NoError(t, err)
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/x?a=1", nil)
	require.NoError(t, err)

	resp, err = Client(nil, query).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "q", gotQuery)
	assert.Equal(t, "a=1", req.URL.RawQuery)
}
