// Package places is a raw HTTP client for the map places API (Google
// Places nearby search), plus coordinate validation against the Seoul
// service area.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api"

// Client performs nearby place searches.
type Client interface {
	NearbySearch(ctx context.Context, req NearbyRequest) (*NearbyResponse, error)
}

// NearbyRequest is the query for the nearby search endpoint.
type NearbyRequest struct {
	Lat     float64
	Lng     float64
	RadiusM int
	Type    string // place type filter, e.g. "restaurant"
	Keyword string
}

// NearbyResponse is the nearby search envelope.
type NearbyResponse struct {
	Status  string  `json:"status"`
	Results []Place `json:"results"`
}

// Place is one place result.
type Place struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Vicinity string `json:"vicinity"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Types            []string `json:"types"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
}

// APIError is a non-2xx response or a non-OK API status.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return "places: api status " + e.Status
	}
	return "places: unexpected status " + strconv.Itoa(e.StatusCode)
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

// NewClient creates a map places client.
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

func (c *httpClient) NearbySearch(ctx context.Context, req NearbyRequest) (*NearbyResponse, error) {
	if !InServiceArea(req.Lat, req.Lng) {
		return nil, eris.Errorf("places: location %.4f,%.4f outside the Seoul service area", req.Lat, req.Lng)
	}

	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", req.Lat, req.Lng))
	q.Set("key", c.apiKey)
	radius := req.RadiusM
	if radius <= 0 {
		radius = 1500
	}
	q.Set("radius", strconv.Itoa(radius))
	if req.Type != "" {
		q.Set("type", req.Type)
	}
	if req.Keyword != "" {
		q.Set("keyword", req.Keyword)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/place/nearbysearch/json?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result NearbyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}
	switch result.Status {
	case "OK", "ZERO_RESULTS":
		return &result, nil
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Status: result.Status, Body: string(body)}
	}
}
