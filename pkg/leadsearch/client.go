// Package leadsearch provides a client for the persona-based lead search API.
package leadsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apollo.io/v1"

// Client defines the lead search operations.
type Client interface {
	// SearchPeople finds contacts matching a persona.
	SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest describes the persona to search for.
type SearchRequest struct {
	PersonTitles      []string `json:"person_titles,omitempty"`
	PersonSeniorities []string `json:"person_seniorities,omitempty"`
	Industries        []string `json:"organization_industries,omitempty"`
	Locations         []string `json:"person_locations,omitempty"`
	CompanySizes      []string `json:"organization_num_employees_ranges,omitempty"`
	Keywords          string   `json:"q_keywords,omitempty"`
	Page              int      `json:"page,omitempty"`
	PerPage           int      `json:"per_page,omitempty"`
}

// SearchResponse holds matched people.
type SearchResponse struct {
	People     []Person   `json:"people"`
	Pagination Pagination `json:"pagination"`
}

// Person is one matched contact.
type Person struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Title        string `json:"title"`
	LinkedInURL  string `json:"linkedin_url"`
	Email        string `json:"email"`
	City         string `json:"city"`
	Country      string `json:"country"`
	Organization struct {
		Name       string `json:"name"`
		WebsiteURL string `json:"website_url"`
	} `json:"organization"`
}

// Pagination reports result paging.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total_entries"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("leadsearch: HTTP %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a new lead search client.
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

func (c *httpClient) SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.PerPage == 0 {
		req.PerPage = 25
	}

	buf, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "leadsearch: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mixed_people/search", bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "leadsearch: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "leadsearch: execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "leadsearch: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var out SearchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "leadsearch: decode response")
	}
	return &out, nil
}
