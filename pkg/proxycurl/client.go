// Package proxycurl provides a client for the LinkedIn profile enrichment API.
package proxycurl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://nubela.co/proxycurl/api"

// Client defines the LinkedIn enrichment operations.
type Client interface {
	// PersonProfile fetches a person's profile by LinkedIn URL.
	PersonProfile(ctx context.Context, linkedinURL string) (*PersonProfile, error)
	// CompanyProfile fetches a company's profile by LinkedIn URL.
	CompanyProfile(ctx context.Context, linkedinURL string) (*CompanyProfile, error)
}

// PersonProfile is the subset of profile fields the handlers use.
type PersonProfile struct {
	PublicIdentifier string       `json:"public_identifier"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	Headline         string       `json:"headline"`
	Occupation       string       `json:"occupation"`
	Summary          string       `json:"summary"`
	Country          string       `json:"country_full_name"`
	City             string       `json:"city"`
	Experiences      []Experience `json:"experiences"`
}

// Experience is one work history entry.
type Experience struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CompanyProfile is the subset of company fields the handlers use.
type CompanyProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Industry    string `json:"industry"`
	CompanySize []int  `json:"company_size"`
	HQ          struct {
		Country string `json:"country"`
		City    string `json:"city"`
	} `json:"hq"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("proxycurl: HTTP %d: %s", e.StatusCode, e.Body)
}

// NotFound reports whether the error is a 404 (profile does not exist).
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new enrichment client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) PersonProfile(ctx context.Context, linkedinURL string) (*PersonProfile, error) {
	var out PersonProfile
	if err := c.get(ctx, "/v2/linkedin", url.Values{"linkedin_profile_url": {linkedinURL}}, &out); err != nil {
		return nil, eris.Wrap(err, "proxycurl: person profile")
	}
	return &out, nil
}

func (c *httpClient) CompanyProfile(ctx context.Context, linkedinURL string) (*CompanyProfile, error) {
	var out CompanyProfile
	if err := c.get(ctx, "/linkedin/company", url.Values{"url": {linkedinURL}}, &out); err != nil {
		return nil, eris.Wrap(err, "proxycurl: company profile")
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
