package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/resilience"
	"github.com/taste-trails/localguide/pkg/tastedive"
)

// CulturalProvider translates the TasteDive similarity API to the
// uniform contract.
type CulturalProvider struct {
	client tastedive.Client
	ttl    time.Duration
	limit  int
}

// NewCulturalProvider creates the cultural-similarity provider.
// Results change slowly, so they default to a one-hour TTL.
func NewCulturalProvider(client tastedive.Client) *CulturalProvider {
	return &CulturalProvider{client: client, ttl: time.Hour, limit: 10}
}

func (p *CulturalProvider) Name() model.ProviderID { return model.ProviderCultural }

func (p *CulturalProvider) TTL() time.Duration { return p.ttl }

func (p *CulturalProvider) CacheKey(req Request) string {
	return cache.Key(string(p.Name()), req.Query.Text, string(req.Query.PlaceType))
}

func (p *CulturalProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	resp, err := p.client.Similar(ctx, tastedive.SimilarRequest{
		Query: req.Query.Text,
		Limit: p.limit,
	})
	if err != nil {
		var apiErr *tastedive.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		if strings.Contains(err.Error(), "unmarshal") {
			return nil, &resilience.MalformedError{Provider: string(p.Name()), Err: err}
		}
		return nil, err
	}

	results := resp.Similar.Results
	candidates := make([]model.Candidate, 0, len(results))
	for i, e := range results {
		candidates = append(candidates, model.Candidate{
			ID:           cache.Key(string(p.Name()), e.Name),
			Name:         e.Name,
			Category:     categoryFromQuery(req.Query),
			Description:  e.Description,
			CulturalTags: []string{"cultural"},
			Scores: model.Scores{
				// TasteDive orders by similarity without an explicit
				// score; decay linearly down the list.
				Relevance: 1 - float64(i)/float64(len(results)),
			},
			Provenance: []string{string(p.Name())},
		})
	}
	return &Payload{Candidates: candidates}, nil
}

func categoryFromQuery(q model.Query) string {
	if q.PlaceType != model.PlaceTypeAny {
		return string(q.PlaceType)
	}
	return "cultural"
}
