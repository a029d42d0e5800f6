package model

// ProviderID identifies one of the external providers.
type ProviderID string

const (
	ProviderCultural ProviderID = "cultural-similarity"
	ProviderSearch   ProviderID = "search-index"
	ProviderPlaces   ProviderID = "map-places"
	ProviderTextGen  ProviderID = "language-generation"

	// ProvenanceFallback marks candidates sourced from the local
	// knowledge base rather than a live provider.
	ProvenanceFallback = "fallback"
)

// DataProviders are the three providers dispatched concurrently per
// request. Language generation runs sequentially after merging.
var DataProviders = []ProviderID{ProviderCultural, ProviderSearch, ProviderPlaces}

// Scores holds the three independent ranking signals for a candidate,
// each in [0,1] before weighting.
type Scores struct {
	Relevance       float64 `json:"relevance"`
	CulturalMatch   float64 `json:"cultural_match"`
	Personalization float64 `json:"personalization"`
}

// Candidate is one recommendable entity. It exists only for the lifetime
// of a single request.
type Candidate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	Location     *Location `json:"location,omitempty"`
	Description  string    `json:"description,omitempty"`
	CulturalTags []string  `json:"cultural_tags,omitempty"`

	Scores     Scores   `json:"scores"`
	RankingKey float64  `json:"ranking_key"`
	Provenance []string `json:"provenance"`
}

// HasTag reports whether the candidate carries the given cultural tag.
func (c *Candidate) HasTag(tag string) bool {
	for _, t := range c.CulturalTags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddProvenance appends source if not already recorded.
func (c *Candidate) AddProvenance(source string) {
	for _, s := range c.Provenance {
		if s == source {
			return
		}
	}
	c.Provenance = append(c.Provenance, source)
}
