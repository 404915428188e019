// Package auth resolves bearer tokens to user identities against the managed
// backend's auth service.
package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// ErrUnauthorized is returned when the token is missing, expired, or invalid.
// Handlers map it to HTTP 401.
var ErrUnauthorized = eris.New("auth: unauthorized")

// User is the resolved identity behind a bearer token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolver resolves a bearer token to a user.
type Resolver interface {
	ResolveToken(ctx context.Context, token string) (*User, error)
}

// Option configures the httpResolver.
type Option func(*httpResolver)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *httpResolver) {
		r.http = hc
	}
}

type httpResolver struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewResolver creates a Resolver backed by the backend auth endpoint.
func NewResolver(baseURL, apiKey string, opts ...Option) Resolver {
	r := &httpResolver{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *httpResolver) ResolveToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, eris.Wrap(err, "auth: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", r.apiKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "auth: resolve token")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "auth: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("auth: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, eris.Wrap(err, "auth: unmarshal user")
	}
	if u.ID == "" {
		return nil, ErrUnauthorized
	}
	return &u, nil
}
