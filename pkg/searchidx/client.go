// Package searchidx is a raw HTTP client for the hosted search index
// (Algolia). The index is tuned for sub-second answers, so the client
// ships with an aggressive 150ms request timeout.
package searchidx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultTimeout bounds one search round-trip. Answers slower than this
// are worth less than a fallback.
const DefaultTimeout = 150 * time.Millisecond

const defaultIndex = "seoul_places"

// Client queries the places search index.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the body for POST /1/indexes/{index}/query.
type SearchRequest struct {
	Query       string `json:"query"`
	Filters     string `json:"filters,omitempty"`
	HitsPerPage int    `json:"hitsPerPage,omitempty"`
}

// SearchResponse is the search result envelope.
type SearchResponse struct {
	Hits     []Hit `json:"hits"`
	NbHits   int   `json:"nbHits"`
	TimeMs   int   `json:"processingTimeMS"`
	Degraded bool  `json:"-"`
}

// Hit is one indexed place.
type Hit struct {
	ObjectID     string   `json:"objectID"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Neighborhood string   `json:"neighborhood"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Geoloc       *Geoloc  `json:"_geoloc,omitempty"`
	RankingScore float64  `json:"rankingScore"`
}

// Geoloc is the index's coordinate format.
type Geoloc struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// APIError is a non-2xx response from the index.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "searchidx: unexpected status " + strconv.Itoa(e.StatusCode)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the application endpoint.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithIndex overrides the default index name.
func WithIndex(index string) Option {
	return func(c *httpClient) { c.index = index }
}

// WithTimeout overrides the default 150ms budget.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) { c.http.Timeout = d }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	appID   string
	apiKey  string
	baseURL string
	index   string
	http    *http.Client
}

// NewClient creates a search index client for the given application.
func NewClient(appID, apiKey string, opts ...Option) Client {
	c := &httpClient{
		appID:   appID,
		apiKey:  apiKey,
		baseURL: "https://" + appID + "-dsn.algolia.net",
		index:   defaultIndex,
		http: &http.Client{
			Timeout: DefaultTimeout,
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

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "searchidx: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/1/indexes/"+c.index+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "searchidx: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Algolia-Application-Id", c.appID)
	httpReq.Header.Set("X-Algolia-API-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "searchidx: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "searchidx: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "searchidx: unmarshal response")
	}
	return &result, nil
}
