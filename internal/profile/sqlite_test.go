package profile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taste-trails/localguide/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_UnknownUserGetsAnonymousProfile(t *testing.T) {
	st := newTestSQLiteStore(t)

	p, err := st.GetProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", p.UserID)
	assert.False(t, p.Authenticated)
}

func TestSQLite_PreferencesRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	prefs := model.Preferences{
		FoodRestrictions: []string{"vegetarian"},
		Interests:        []string{"food", "traditional"},
		BudgetTier:       model.BudgetMidRange,
		TravelStyle:      "solo",
	}
	require.NoError(t, st.UpsertPreferences(ctx, "u1", prefs))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, prefs, p.Preferences)
	assert.True(t, p.Authenticated)
}

func TestSQLite_RecordVisitAdjustsWeight(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordVisit(ctx, "u1", model.VisitedPlace{
		Name: "Gwangjang Market", Category: "Restaurant", Rating: 5,
		VisitedAt: time.Now().UTC(),
	}))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, p.History.VisitedPlaces, 1)
	assert.Equal(t, "restaurant", p.History.VisitedPlaces[0].Category)
	assert.InDelta(t, 1.1, p.RecommendationWeights["restaurant"], 1e-9)
}

func TestSQLite_BadVisitLowersWeight(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordVisit(ctx, "u1", model.VisitedPlace{
		Name: "Tourist Trap BBQ", Category: "restaurant", Rating: 1,
	}))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, p.RecommendationWeights["restaurant"], 1e-9)
}

func TestSQLite_WeightsClampAtBounds(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// 25 five-star visits would push the weight to 3.5 unclamped.
	for i := 0; i < 25; i++ {
		require.NoError(t, st.RecordVisit(ctx, "u1", model.VisitedPlace{
			Name: "Great Cafe", Category: "cafe", Rating: 5,
		}))
	}

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, WeightMax, p.RecommendationWeights["cafe"], 1e-9)
}

func TestSQLite_FavoriteIsIdempotentAndBoostsWeight(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	fav := model.FavoritePlace{Name: "Insadong Tea House", Category: "cafe"}
	require.NoError(t, st.AddFavorite(ctx, "u1", fav))
	require.NoError(t, st.AddFavorite(ctx, "u1", fav))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.History.Favorites, 1)
	assert.Greater(t, p.RecommendationWeights["cafe"], 1.0)
}

func TestSQLite_SearchLog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.LogSearch(ctx, "u1", "street food myeongdong"))
	require.NoError(t, st.LogSearch(ctx, "u1", "hongdae nightlife"))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.History.SearchLog, 2)
	assert.Contains(t, p.History.SearchLog, "street food myeongdong")
}

func TestApplyEvent_Dispatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, ApplyEvent(ctx, st, "u1", model.ProfileEvent{
		Kind: model.EventSearchLogged, Query: "palace tour",
	}))
	require.NoError(t, ApplyEvent(ctx, st, "u1", model.ProfileEvent{
		Kind: model.EventVisitRecorded, Place: "Gyeongbokgung", Category: "attraction", Rating: 5,
	}))
	require.NoError(t, ApplyEvent(ctx, st, "u1", model.ProfileEvent{
		Kind: model.EventFavoriteAdded, Place: "Bukchon", Category: "attraction",
	}))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.History.SearchLog, 1)
	assert.Len(t, p.History.VisitedPlaces, 1)
	assert.Len(t, p.History.Favorites, 1)
}

func TestAdjustWeight(t *testing.T) {
	assert.InDelta(t, 1.1, adjustWeight(1.0, 5), 1e-9)
	assert.InDelta(t, 0.9, adjustWeight(1.0, 1), 1e-9)
	assert.InDelta(t, 1.0, adjustWeight(1.0, 3), 1e-9)
	assert.InDelta(t, 1.0, adjustWeight(1.0, 0), 1e-9)
	assert.InDelta(t, WeightMax, adjustWeight(WeightMax, 5), 1e-9)
	assert.InDelta(t, WeightMin, adjustWeight(WeightMin, 2), 1e-9)
}
