package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/resilience"
	"github.com/taste-trails/localguide/pkg/places"
)

// googleTypes maps place-type filters onto the map API's type taxonomy.
var googleTypes = map[model.PlaceType]string{
	model.PlaceTypeRestaurant: "restaurant",
	model.PlaceTypeCafe:       "cafe",
	model.PlaceTypeAttraction: "tourist_attraction",
	model.PlaceTypeShopping:   "shopping_mall",
	model.PlaceTypeNightlife:  "night_club",
}

// PlacesProvider translates the map places API to the uniform contract.
type PlacesProvider struct {
	client places.Client
	ttl    time.Duration
	radius int
}

// PlacesOption configures the places provider.
type PlacesOption func(*PlacesProvider)

// WithRadius sets the nearby-search radius in meters. Non-positive
// leaves the client's default in effect.
func WithRadius(meters int) PlacesOption {
	return func(p *PlacesProvider) { p.radius = meters }
}

// NewPlacesProvider creates the map-places provider. Physical places
// barely move, so results default to a 24-hour TTL.
func NewPlacesProvider(client places.Client, opts ...PlacesOption) *PlacesProvider {
	p := &PlacesProvider{client: client, ttl: 24 * time.Hour}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *PlacesProvider) Name() model.ProviderID { return model.ProviderPlaces }

func (p *PlacesProvider) TTL() time.Duration { return p.ttl }

func (p *PlacesProvider) CacheKey(req Request) string {
	loc := model.SeoulCenter
	if req.Query.Location != nil {
		loc = *req.Query.Location
	}
	return cache.Key(string(p.Name()),
		req.Query.Text, string(req.Query.PlaceType), loc.String())
}

func (p *PlacesProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	loc := model.SeoulCenter
	if req.Query.Location != nil {
		loc = *req.Query.Location
	}

	preq := places.NearbyRequest{
		Lat:     loc.Lat,
		Lng:     loc.Lng,
		RadiusM: p.radius,
		Keyword: req.Query.Text,
	}
	if t, ok := googleTypes[req.Query.PlaceType]; ok {
		preq.Type = t
	}

	resp, err := p.client.NearbySearch(ctx, preq)
	if err != nil {
		var apiErr *places.APIError
		if errors.As(err, &apiErr) {
			if resilience.IsTransientHTTPStatus(apiErr.StatusCode) || apiErr.Status == "OVER_QUERY_LIMIT" {
				return nil, resilience.NewTransientError(err, apiErr.StatusCode)
			}
		}
		if strings.Contains(err.Error(), "unmarshal") {
			return nil, &resilience.MalformedError{Provider: string(p.Name()), Err: err}
		}
		return nil, err
	}

	candidates := make([]model.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		candidates = append(candidates, model.Candidate{
			ID:          "map-" + r.PlaceID,
			Name:        r.Name,
			Category:    categoryFromTypes(r.Types, req.Query),
			Description: r.Vicinity,
			Location: &model.Location{
				Lat: r.Geometry.Location.Lat,
				Lng: r.Geometry.Location.Lng,
			},
			Scores:     model.Scores{Relevance: r.Rating / 5},
			Provenance: []string{string(p.Name())},
		})
	}
	return &Payload{Candidates: candidates}, nil
}

// categoryFromTypes picks our category for a place from the API's type
// list, preferring the query's own filter when set.
func categoryFromTypes(types []string, q model.Query) string {
	if q.PlaceType != model.PlaceTypeAny {
		return string(q.PlaceType)
	}
	for _, t := range types {
		for pt, gt := range googleTypes {
			if t == gt {
				return string(pt)
			}
		}
	}
	return "attraction"
}
