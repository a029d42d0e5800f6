package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taste-trails/localguide/internal/model"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func score(t *testing.T, c *model.Candidate, p *model.UserProfile, relevance float64) float64 {
	t.Helper()
	s := New(Config{})
	s.Score(c, p, relevance, fixedNow)
	return c.RankingKey
}

func TestScore_RelevanceClamped(t *testing.T) {
	c := model.Candidate{ID: "a", Category: "restaurant"}
	score(t, &c, nil, 3.7)
	assert.Equal(t, 1.0, c.Scores.Relevance)

	c2 := model.Candidate{ID: "b", Category: "restaurant"}
	score(t, &c2, nil, -0.5)
	assert.Equal(t, 0.0, c2.Scores.Relevance)
}

func TestScore_AuthenticOutranksTouristAtEqualRelevance(t *testing.T) {
	authentic := model.Candidate{
		ID: "a", Category: "restaurant",
		CulturalTags: []string{"local", "authentic"},
	}
	touristy := model.Candidate{
		ID: "b", Category: "restaurant",
		CulturalTags: []string{"local", "tourist"},
	}

	ka := score(t, &authentic, nil, 0.8)
	kt := score(t, &touristy, nil, 0.8)
	assert.Greater(t, ka, kt)
}

func TestScore_RecentVisitBeatsOldVisit(t *testing.T) {
	recent := &model.UserProfile{History: model.History{VisitedPlaces: []model.VisitedPlace{
		{Name: "x", Category: "cafe", Rating: 5, VisitedAt: fixedNow.AddDate(0, 0, -3)},
	}}}
	old := &model.UserProfile{History: model.History{VisitedPlaces: []model.VisitedPlace{
		{Name: "x", Category: "cafe", Rating: 5, VisitedAt: fixedNow.AddDate(0, 0, -120)},
	}}}

	c1 := model.Candidate{ID: "a", Category: "cafe"}
	c2 := model.Candidate{ID: "a", Category: "cafe"}
	kRecent := score(t, &c1, recent, 0.5)
	kOld := score(t, &c2, old, 0.5)
	assert.Greater(t, kRecent, kOld)
}

func TestScore_HalfLifeDecay(t *testing.T) {
	s := New(Config{HalfLifeDays: 30})
	p := &model.UserProfile{History: model.History{VisitedPlaces: []model.VisitedPlace{
		{Name: "x", Category: "cafe", Rating: 5, VisitedAt: fixedNow.AddDate(0, 0, -30)},
	}}}
	c := model.Candidate{ID: "a", Category: "cafe"}
	s.Score(&c, p, 0, fixedNow)

	// One half-life: raw 1.0 decays to 0.5, uniform weights contribute 0.5.
	assert.InDelta(t, 0.25, c.Scores.Personalization, 1e-9)
}

func TestScore_CategoryWeightRaisesPersonalization(t *testing.T) {
	history := model.History{VisitedPlaces: []model.VisitedPlace{
		{Name: "x", Category: "restaurant", Rating: 5, VisitedAt: fixedNow.AddDate(0, 0, -1)},
	}}
	loved := &model.UserProfile{
		History:               history,
		RecommendationWeights: map[string]float64{"restaurant": 2.0, "cafe": 0.5},
	}
	disliked := &model.UserProfile{
		History:               history,
		RecommendationWeights: map[string]float64{"restaurant": 0.1, "cafe": 1.5},
	}

	c1 := model.Candidate{ID: "a", Category: "restaurant"}
	c2 := model.Candidate{ID: "a", Category: "restaurant"}
	kLoved := score(t, &c1, loved, 0.5)
	kDisliked := score(t, &c2, disliked, 0.5)
	assert.Greater(t, kLoved, kDisliked)
}

func TestScore_InterestsSeedColdStart(t *testing.T) {
	p := &model.UserProfile{Preferences: model.Preferences{Interests: []string{"traditional"}}}
	matched := model.Candidate{ID: "a", Category: "attraction", CulturalTags: []string{"traditional"}}
	unmatched := model.Candidate{ID: "b", Category: "attraction", CulturalTags: []string{"modern"}}

	s := New(Config{})
	s.Score(&matched, p, 0, fixedNow)
	s.Score(&unmatched, p, 0, fixedNow)
	assert.Greater(t, matched.Scores.Personalization, unmatched.Scores.Personalization)
}

func TestRank_DescendingWithIDTieBreak(t *testing.T) {
	cands := []model.Candidate{
		{ID: "c", RankingKey: 0.5},
		{ID: "a", RankingKey: 0.5},
		{ID: "b", RankingKey: 0.9},
	}
	Rank(cands)
	assert.Equal(t, "b", cands[0].ID)
	assert.Equal(t, "a", cands[1].ID)
	assert.Equal(t, "c", cands[2].ID)
}

func TestScore_Deterministic(t *testing.T) {
	p := &model.UserProfile{
		History: model.History{VisitedPlaces: []model.VisitedPlace{
			{Name: "x", Category: "restaurant", Rating: 4, VisitedAt: fixedNow.AddDate(0, 0, -10)},
		}},
		RecommendationWeights: map[string]float64{"restaurant": 1.4},
	}
	c1 := model.Candidate{ID: "a", Category: "restaurant", CulturalTags: []string{"local"}}
	c2 := c1
	k1 := score(t, &c1, p, 0.7)
	k2 := score(t, &c2, p, 0.7)
	assert.Equal(t, k1, k2)
	assert.Equal(t, c1.Scores, c2.Scores)
}
