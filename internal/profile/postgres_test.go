package profile

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taste-trails/localguide/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_GetProfile_UnknownUserIsAnonymous(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT preferences, weights, authenticated FROM profiles WHERE user_id = \$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", p.UserID)
	assert.False(t, p.Authenticated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetProfile_LoadsHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	visitedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT preferences, weights, authenticated FROM profiles WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"preferences", "weights", "authenticated"}).
			AddRow([]byte(`{"interests":["food"]}`), []byte(`{"restaurant":1.4}`), true))
	mock.ExpectQuery(`SELECT name, category, rating, visited_at FROM visits`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "category", "rating", "visited_at"}).
			AddRow("Gwangjang Market", "restaurant", 5, visitedAt))
	mock.ExpectQuery(`SELECT name, category, saved_at FROM favorites`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "category", "saved_at"}))
	mock.ExpectQuery(`SELECT query FROM search_log`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"query"}).AddRow("street food"))

	p, err := s.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.Authenticated)
	assert.Equal(t, []string{"food"}, p.Preferences.Interests)
	assert.InDelta(t, 1.4, p.RecommendationWeights["restaurant"], 1e-9)
	require.Len(t, p.History.VisitedPlaces, 1)
	assert.Equal(t, "Gwangjang Market", p.History.VisitedPlaces[0].Name)
	assert.Equal(t, []string{"street food"}, p.History.SearchLog)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LogSearch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO profiles \(user_id\) VALUES \(\$1\)`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO search_log`).
		WithArgs("u1", "hongdae cafes", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.LogSearch(context.Background(), "u1", "hongdae cafes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordVisit_UpdatesWeightInTx(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO profiles \(user_id\) VALUES \(\$1\)`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO visits`).
		WithArgs("u1", "Great Cafe", "cafe", 5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT weights FROM profiles WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"weights"}).AddRow([]byte(`{"cafe":1.0}`)))
	mock.ExpectExec(`UPDATE profiles SET weights = \$1`).
		WithArgs(pgxmock.AnyArg(), "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, s.RecordVisit(context.Background(), "u1", model.VisitedPlace{
		Name: "Great Cafe", Category: "cafe", Rating: 5,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
