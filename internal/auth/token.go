// Package auth implements the OAuth2 client-credentials exchange against the
// imagery platform. Tokens are short-lived; refreshes are serialized so
// concurrent downloads never race a mid-flight invalidation or trigger a
// refresh storm.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// expirySkew renews tokens slightly before the server-side deadline.
const expirySkew = 30 * time.Second

// TokenSource exchanges client credentials for bearer tokens and caches the
// current one until it nears expiry.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource creates a token source for the given token endpoint.
func NewTokenSource(tokenURL, clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		},
	}
}

// Token returns the cached bearer token, exchanging credentials first if none
// is held or the held one is about to expire.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expires.Add(-expirySkew)) {
		return s.token, nil
	}
	return s.exchangeLocked(ctx)
}

// Refresh obtains a new token after stale was rejected by the server. If
// another caller already replaced stale, the current token is returned
// without a second exchange; only one in-flight refresh exists at a time.
func (s *TokenSource) Refresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.token != stale {
		return s.token, nil
	}
	return s.exchangeLocked(ctx)
}

// exchangeLocked performs the client-credentials POST. Callers hold s.mu.
func (s *TokenSource) exchangeLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status: %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	s.token = body.AccessToken
	s.expires = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return s.token, nil
}
