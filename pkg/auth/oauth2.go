package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// OAuth2Error reports a token endpoint that answered with a non-2xx status.
type OAuth2Error struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *OAuth2Error) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("oauth2 token request failed: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("oauth2 token request failed: %s", e.Status)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// FetchOAuth2Token performs a client-credentials exchange against the
// configured token URL and returns the access token. Unlike AcquireToken it
// reports every failure to the caller.
func (a *Authenticator) FetchOAuth2Token(ctx context.Context) (string, error) {
	if a.cfg.TokenURL == "" || a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return "", fmt.Errorf("oauth2 requires token_url, client_id and client_secret")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	if len(a.cfg.Scopes) > 0 {
		form.Set("scope", strings.Join(a.cfg.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &OAuth2Error{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return tr.AccessToken, nil
}

// AcquireToken is FetchOAuth2Token with failures logged and swallowed. ok is
// false when the configuration is incomplete or the exchange failed; the
// server then keeps running and calls go out without a bearer token.
func (a *Authenticator) AcquireToken(ctx context.Context) (token string, ok bool) {
	if a.cfg.TokenURL == "" || a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		a.logger.Warn().Msg("oauth2 token_url, client_id or client_secret missing; no token acquired")
		return "", false
	}
	token, err := a.FetchOAuth2Token(ctx)
	if err != nil {
		a.logger.Error().Err(err).Str("token_url", a.cfg.TokenURL).Msg("oauth2 token acquisition failed")
		return "", false
	}
	return token, true
}

// EnsureToken acquires and stores an OAuth2 token when the strategy is
// oauth2 and no token is configured yet. It reports whether a token is
// available afterwards; other strategies always report true.
func (a *Authenticator) EnsureToken(ctx context.Context) bool {
	if a.typ != TypeOAuth2 {
		return true
	}
	if a.Token() != "" {
		return true
	}
	token, ok := a.AcquireToken(ctx)
	if ok {
		a.SetToken(token)
		a.logger.Info().Str("token_url", a.cfg.TokenURL).Msg("oauth2 token acquired")
	}
	return ok
}
