// Package tastedive is a raw HTTP client for the TasteDive cultural
// similarity API.
package tastedive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://tastedive.com/api"

// Client queries culturally similar entities.
type Client interface {
	Similar(ctx context.Context, req SimilarRequest) (*SimilarResponse, error)
}

// SimilarRequest is the query for GET /similar.
type SimilarRequest struct {
	Query string
	Kind  string // optional TasteDive type filter, e.g. "music", "movie"
	Limit int
}

// SimilarResponse is the response envelope for GET /similar.
type SimilarResponse struct {
	Similar struct {
		Info    []Entity `json:"info"`
		Results []Entity `json:"results"`
	} `json:"similar"`
}

// Entity is one similar item.
type Entity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"wTeaser"`
	URL         string `json:"wUrl"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "tastedive: unexpected status " + strconv.Itoa(e.StatusCode)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a TasteDive API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Similar(ctx context.Context, req SimilarRequest) (*SimilarResponse, error) {
	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("k", c.apiKey)
	if req.Kind != "" {
		q.Set("type", req.Kind)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/similar?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "tastedive: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "tastedive: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "tastedive: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result SimilarResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "tastedive: unmarshal response")
	}
	return &result, nil
}
