// Package scorer computes the ranking key for recommendation
// candidates. Scoring is pure: the same candidate, profile, and clock
// always produce the same key.
package scorer

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/taste-trails/localguide/internal/model"
)

// Weights blends the three signals into one ranking key.
type Weights struct {
	Relevance       float64 `yaml:"relevance"`
	CulturalMatch   float64 `yaml:"cultural_match"`
	Personalization float64 `yaml:"personalization"`
}

// Config holds the scoring tunables.
type Config struct {
	Weights Weights `yaml:"weights"`

	// AuthenticBonus is added to the cultural-match signal of any
	// candidate tagged authentic, so such candidates always outrank
	// otherwise-equal tourist-tagged ones.
	AuthenticBonus float64 `yaml:"authentic_bonus"`

	// HalfLifeDays controls how fast visit history stops influencing
	// personalization.
	HalfLifeDays int `yaml:"half_life_days"`
}

// DefaultConfig returns the production scoring constants.
func DefaultConfig() Config {
	return Config{
		Weights:        Weights{Relevance: 0.4, CulturalMatch: 0.35, Personalization: 0.25},
		AuthenticBonus: 0.15,
		HalfLifeDays:   30,
	}
}

// authenticityWeight ranks cultural tags from most to least authentic.
var authenticityWeight = map[string]float64{
	"traditional": 1.0,
	"authentic":   0.9,
	"local":       0.8,
	"heritage":    0.8,
	"cultural":    0.7,
	"food":        0.5,
	"modern":      0.4,
	"tourist":     0.2,
}

// Scorer scores and ranks candidates.
type Scorer struct {
	cfg Config
}

// New creates a Scorer, falling back to defaults for zero-valued
// tunables.
func New(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.AuthenticBonus == 0 {
		cfg.AuthenticBonus = def.AuthenticBonus
	}
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = def.HalfLifeDays
	}
	return &Scorer{cfg: cfg}
}

// Score fills in c.Scores and c.RankingKey. relevance is the
// provider-native signal and is clamped to [0,1] before blending.
func (s *Scorer) Score(c *model.Candidate, profile *model.UserProfile, relevance float64, now time.Time) {
	c.Scores.Relevance = clamp01(relevance)
	c.Scores.CulturalMatch = s.culturalMatch(c)
	c.Scores.Personalization = s.personalization(c, profile, now)

	w := s.cfg.Weights
	c.RankingKey = w.Relevance*c.Scores.Relevance +
		w.CulturalMatch*c.Scores.CulturalMatch +
		w.Personalization*c.Scores.Personalization
}

// Rank sorts candidates by ranking key descending. Equal keys fall back
// to candidate id so ordering is reproducible across runs.
func Rank(candidates []model.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RankingKey != candidates[j].RankingKey {
			return candidates[i].RankingKey > candidates[j].RankingKey
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// culturalMatch averages the authenticity weight of the candidate's
// tags, then adds the fixed authentic bonus for authentic/traditional
// tagged candidates. The result stays in [0,1].
func (s *Scorer) culturalMatch(c *model.Candidate) float64 {
	if len(c.CulturalTags) == 0 {
		return 0
	}
	var sum float64
	for _, tag := range c.CulturalTags {
		sum += authenticityWeight[strings.ToLower(tag)]
	}
	score := sum / float64(len(c.CulturalTags))
	if c.HasTag("authentic") || c.HasTag("traditional") {
		score += s.cfg.AuthenticBonus
	}
	return clamp01(score)
}

// personalization scales the profile's normalized category weight by
// the recency-decayed overlap between the candidate's category and the
// user's positively-rated visit history.
func (s *Scorer) personalization(c *model.Candidate, profile *model.UserProfile, now time.Time) float64 {
	if profile == nil {
		return 0
	}

	weight := normalizedWeight(profile.RecommendationWeights, c.Category)

	overlap := s.historyOverlap(c, profile, now)
	interest := interestMatch(c, profile)

	// History dominates when present; declared interests seed the signal
	// for users with no visits yet.
	signal := math.Max(overlap, 0.5*interest)
	return clamp01(weight * signal)
}

// historyOverlap returns the strongest decayed affinity between the
// candidate's category and the user's visit history. A visit's
// contribution halves every HalfLifeDays, so recent visits always
// contribute at least as much as older ones.
func (s *Scorer) historyOverlap(c *model.Candidate, profile *model.UserProfile, now time.Time) float64 {
	halfLife := float64(s.cfg.HalfLifeDays)
	best := 0.0
	for _, v := range profile.History.VisitedPlaces {
		if !strings.EqualFold(v.Category, c.Category) {
			continue
		}
		raw := 0.6
		if v.Rating >= 4 {
			raw = 1.0
		} else if v.Rating > 0 && v.Rating <= 2 {
			raw = 0.2
		}
		ageDays := now.Sub(v.VisitedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		decayed := raw * math.Pow(2, -ageDays/halfLife)
		if decayed > best {
			best = decayed
		}
	}
	for _, f := range profile.History.Favorites {
		if strings.EqualFold(f.Category, c.Category) && best < 0.8 {
			best = 0.8
		}
	}
	return best
}

// interestMatch reports whether a declared interest appears in the
// candidate's tags or category.
func interestMatch(c *model.Candidate, profile *model.UserProfile) float64 {
	for _, interest := range profile.Preferences.Interests {
		li := strings.ToLower(interest)
		if strings.EqualFold(c.Category, interest) {
			return 1
		}
		for _, tag := range c.CulturalTags {
			if strings.ToLower(tag) == li {
				return 1
			}
		}
	}
	return 0
}

// normalizedWeight maps the stored category weight ([0.1, 2.0], neutral
// 1.0) onto [0,1] relative to the profile's own spread. A profile with
// uniform weights yields 0.5 for every category.
func normalizedWeight(weights map[string]float64, category string) float64 {
	if len(weights) == 0 {
		return 0.5
	}
	w, ok := weights[strings.ToLower(category)]
	if !ok {
		w = 1.0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range weights {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	lo = math.Min(lo, 1.0)
	hi = math.Max(hi, 1.0)
	if hi == lo {
		return 0.5
	}
	return (w - lo) / (hi - lo)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
