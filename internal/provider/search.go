package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/resilience"
	"github.com/taste-trails/localguide/pkg/searchidx"
)

// SearchProvider translates the hosted search index to the uniform
// contract.
type SearchProvider struct {
	client searchidx.Client
	ttl    time.Duration
	hits   int
}

// NewSearchProvider creates the search-index provider. Index contents
// churn fastest of the three data sources, so results default to a
// five-minute TTL.
func NewSearchProvider(client searchidx.Client) *SearchProvider {
	return &SearchProvider{client: client, ttl: 5 * time.Minute, hits: 20}
}

func (p *SearchProvider) Name() model.ProviderID { return model.ProviderSearch }

func (p *SearchProvider) TTL() time.Duration { return p.ttl }

func (p *SearchProvider) CacheKey(req Request) string {
	return cache.Key(string(p.Name()), req.Query.Text, string(req.Query.PlaceType))
}

func (p *SearchProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	sreq := searchidx.SearchRequest{
		Query:       req.Query.Text,
		HitsPerPage: p.hits,
	}
	if req.Query.PlaceType != model.PlaceTypeAny {
		sreq.Filters = "category:" + string(req.Query.PlaceType)
	}

	resp, err := p.client.Search(ctx, sreq)
	if err != nil {
		var apiErr *searchidx.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		if strings.Contains(err.Error(), "unmarshal") {
			return nil, &resilience.MalformedError{Provider: string(p.Name()), Err: err}
		}
		return nil, err
	}

	candidates := make([]model.Candidate, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		c := model.Candidate{
			ID:           "idx-" + h.ObjectID,
			Name:         h.Name,
			Category:     h.Category,
			Neighborhood: h.Neighborhood,
			Description:  h.Description,
			CulturalTags: append([]string(nil), h.Tags...),
			Scores:       model.Scores{Relevance: h.RankingScore},
			Provenance:   []string{string(p.Name())},
		}
		if h.Geoloc != nil {
			c.Location = &model.Location{Lat: h.Geoloc.Lat, Lng: h.Geoloc.Lng}
		}
		candidates = append(candidates, c)
	}
	return &Payload{Candidates: candidates}, nil
}
