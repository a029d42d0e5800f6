package model

import "time"

// BudgetTier buckets a user's spending preference.
type BudgetTier string

const (
	BudgetBudget   BudgetTier = "budget"
	BudgetMidRange BudgetTier = "mid-range"
	BudgetLuxury   BudgetTier = "luxury"
)

// Preferences holds a user's declared tastes and constraints.
type Preferences struct {
	FoodRestrictions    []string   `json:"food_restrictions,omitempty"`
	Interests           []string   `json:"interests,omitempty"`
	CulturalPreferences []string   `json:"cultural_preferences,omitempty"`
	BudgetTier          BudgetTier `json:"budget_tier,omitempty"`
	TravelStyle         string     `json:"travel_style,omitempty"`
}

// VisitedPlace is one entry in a user's visit history.
type VisitedPlace struct {
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Rating    int       `json:"rating"` // 1..5, 0 = unrated
	VisitedAt time.Time `json:"visited_at"`
}

// FavoritePlace is a place the user has explicitly saved.
type FavoritePlace struct {
	Name     string    `json:"name"`
	Category string    `json:"category"`
	SavedAt  time.Time `json:"saved_at"`
}

// History is the behavioral side of a profile.
type History struct {
	VisitedPlaces []VisitedPlace  `json:"visited_places,omitempty"`
	Favorites     []FavoritePlace `json:"favorites,omitempty"`
	SearchLog     []string        `json:"search_log,omitempty"`
}

// UserProfile is the read-only per-request snapshot the orchestrator
// receives. The orchestrator never mutates it; durable changes travel as
// ProfileEvents back to the profile store.
type UserProfile struct {
	UserID      string      `json:"user_id"`
	Preferences Preferences `json:"preferences"`
	History     History     `json:"history"`

	// RecommendationWeights maps category -> weight. Weights are kept
	// within [0.1, 2.0] by the profile store and normalized by the
	// scorer before use.
	RecommendationWeights map[string]float64 `json:"recommendation_weights,omitempty"`

	Authenticated bool `json:"authenticated"`
}

// AnonymousProfile is the snapshot used when no user is known.
func AnonymousProfile() *UserProfile {
	return &UserProfile{
		UserID: "anonymous",
		Preferences: Preferences{
			BudgetTier:  BudgetMidRange,
			TravelStyle: "solo",
		},
	}
}

// HasVisited reports whether name appears in the visit history.
func (p *UserProfile) HasVisited(name string) bool {
	for _, v := range p.History.VisitedPlaces {
		if v.Name == name {
			return true
		}
	}
	return false
}
