// Package profile persists user profiles: preferences, visit history,
// favorites, search log, and the per-category recommendation weights
// the scorer personalizes with.
package profile

import (
	"context"
	"strings"

	"github.com/taste-trails/localguide/internal/model"
)

// Weight bounds. Repeated positive visits push a category toward
// WeightMax; bad experiences push it toward WeightMin. Neutral is 1.0.
const (
	WeightMin  = 0.1
	WeightMax  = 2.0
	WeightStep = 0.1
)

// Store defines the persistence interface for user profiles.
type Store interface {
	// GetProfile returns the profile snapshot for userID, or an
	// anonymous profile when the user is unknown.
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)

	// UpsertPreferences replaces a user's declared preferences,
	// creating the profile if needed.
	UpsertPreferences(ctx context.Context, userID string, prefs model.Preferences) error

	// LogSearch appends a query to the user's search log.
	LogSearch(ctx context.Context, userID, query string) error

	// RecordVisit stores a visit and adjusts the category weight by
	// the visit's rating.
	RecordVisit(ctx context.Context, userID string, visit model.VisitedPlace) error

	// AddFavorite stores a favorite and nudges the category weight up.
	AddFavorite(ctx context.Context, userID string, fav model.FavoritePlace) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ApplyEvent dispatches one profile event to the matching store
// operation.
func ApplyEvent(ctx context.Context, s Store, userID string, ev model.ProfileEvent) error {
	switch ev.Kind {
	case model.EventSearchLogged:
		return s.LogSearch(ctx, userID, ev.Query)
	case model.EventVisitRecorded:
		return s.RecordVisit(ctx, userID, model.VisitedPlace{
			Name:      ev.Place,
			Category:  ev.Category,
			Rating:    ev.Rating,
			VisitedAt: ev.At,
		})
	case model.EventFavoriteAdded:
		return s.AddFavorite(ctx, userID, model.FavoritePlace{
			Name:     ev.Place,
			Category: ev.Category,
			SavedAt:  ev.At,
		})
	default:
		return nil
	}
}

// clampWeight keeps a recommendation weight inside [WeightMin,
// WeightMax].
func clampWeight(w float64) float64 {
	if w < WeightMin {
		return WeightMin
	}
	if w > WeightMax {
		return WeightMax
	}
	return w
}

// adjustWeight applies a rating to a category weight. Ratings of 4-5
// raise the weight, 1-2 lower it, 3 or unrated leaves it.
func adjustWeight(current float64, rating int) float64 {
	switch {
	case rating >= 4:
		return clampWeight(current + WeightStep)
	case rating > 0 && rating <= 2:
		return clampWeight(current - WeightStep)
	default:
		return clampWeight(current)
	}
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
