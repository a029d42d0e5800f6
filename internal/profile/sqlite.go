package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/taste-trails/localguide/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id       TEXT PRIMARY KEY,
	preferences   TEXT NOT NULL DEFAULT '{}',
	weights       TEXT NOT NULL DEFAULT '{}',
	authenticated INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS visits (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL REFERENCES profiles(user_id),
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	rating     INTEGER NOT NULL DEFAULT 0,
	visited_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS favorites (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id  TEXT NOT NULL REFERENCES profiles(user_id),
	name     TEXT NOT NULL,
	category TEXT NOT NULL,
	saved_at DATETIME NOT NULL,
	UNIQUE(user_id, name)
);

CREATE TABLE IF NOT EXISTS search_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL REFERENCES profiles(user_id),
	query       TEXT NOT NULL,
	searched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_visits_user_id ON visits(user_id);
CREATE INDEX IF NOT EXISTS idx_favorites_user_id ON favorites(user_id);
CREATE INDEX IF NOT EXISTS idx_search_log_user_id ON search_log(user_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var prefsJSON, weightsJSON string
	var authenticated bool
	err := s.db.QueryRowContext(ctx,
		`SELECT preferences, weights, authenticated FROM profiles WHERE user_id = ?`, userID,
	).Scan(&prefsJSON, &weightsJSON, &authenticated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AnonymousProfile(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", userID)
	}

	p := &model.UserProfile{UserID: userID, Authenticated: authenticated}
	if err := json.Unmarshal([]byte(prefsJSON), &p.Preferences); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal preferences")
	}
	if err := json.Unmarshal([]byte(weightsJSON), &p.RecommendationWeights); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal weights")
	}

	if p.History.VisitedPlaces, err = s.visits(ctx, userID); err != nil {
		return nil, err
	}
	if p.History.Favorites, err = s.favorites(ctx, userID); err != nil {
		return nil, err
	}
	if p.History.SearchLog, err = s.searches(ctx, userID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) visits(ctx context.Context, userID string) ([]model.VisitedPlace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, category, rating, visited_at FROM visits WHERE user_id = ? ORDER BY visited_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query visits")
	}
	defer rows.Close()

	var out []model.VisitedPlace
	for rows.Next() {
		var v model.VisitedPlace
		if err := rows.Scan(&v.Name, &v.Category, &v.Rating, &v.VisitedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan visit")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: visits rows")
}

func (s *SQLiteStore) favorites(ctx context.Context, userID string) ([]model.FavoritePlace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, category, saved_at FROM favorites WHERE user_id = ? ORDER BY saved_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query favorites")
	}
	defer rows.Close()

	var out []model.FavoritePlace
	for rows.Next() {
		var f model.FavoritePlace
		if err := rows.Scan(&f.Name, &f.Category, &f.SavedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan favorite")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: favorites rows")
}

func (s *SQLiteStore) searches(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM search_log WHERE user_id = ? ORDER BY searched_at DESC LIMIT 50`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query search log")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: search rows")
}

func (s *SQLiteStore) UpsertPreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal preferences")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, preferences, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET preferences = excluded.preferences, updated_at = excluded.updated_at`,
		userID, string(prefsJSON), now, now)
	return eris.Wrapf(err, "sqlite: upsert preferences %s", userID)
}

func (s *SQLiteStore) LogSearch(ctx context.Context, userID, query string) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_log (user_id, query, searched_at) VALUES (?, ?, ?)`,
		userID, query, time.Now().UTC())
	return eris.Wrapf(err, "sqlite: log search %s", userID)
}

func (s *SQLiteStore) RecordVisit(ctx context.Context, userID string, visit model.VisitedPlace) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}
	visitedAt := visit.VisitedAt
	if visitedAt.IsZero() {
		visitedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visits (user_id, name, category, rating, visited_at) VALUES (?, ?, ?, ?, ?)`,
		userID, visit.Name, normalizeCategory(visit.Category), visit.Rating, visitedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record visit %s", userID)
	}
	return s.bumpWeight(ctx, userID, visit.Category, visit.Rating)
}

func (s *SQLiteStore) AddFavorite(ctx context.Context, userID string, fav model.FavoritePlace) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}
	savedAt := fav.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (user_id, name, category, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO NOTHING`,
		userID, fav.Name, normalizeCategory(fav.Category), savedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add favorite %s", userID)
	}
	// A favorite is an endorsement.
	return s.bumpWeight(ctx, userID, fav.Category, 5)
}

// bumpWeight adjusts one category weight inside the profile's weights
// JSON, clamped to the allowed range.
func (s *SQLiteStore) bumpWeight(ctx context.Context, userID, category string, rating int) error {
	category = normalizeCategory(category)
	if category == "" {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin weight update")
	}
	defer tx.Rollback()

	var weightsJSON string
	if err := tx.QueryRowContext(ctx,
		`SELECT weights FROM profiles WHERE user_id = ?`, userID).Scan(&weightsJSON); err != nil {
		return eris.Wrapf(err, "sqlite: load weights %s", userID)
	}

	weights := map[string]float64{}
	if err := json.Unmarshal([]byte(weightsJSON), &weights); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal weights")
	}
	current, ok := weights[category]
	if !ok {
		current = 1.0
	}
	weights[category] = adjustWeight(current, rating)

	updated, err := json.Marshal(weights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal weights")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET weights = ?, updated_at = ? WHERE user_id = ?`,
		string(updated), time.Now().UTC(), userID); err != nil {
		return eris.Wrapf(err, "sqlite: update weights %s", userID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit weight update")
}

func (s *SQLiteStore) ensureProfile(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, now, now)
	return eris.Wrapf(err, "sqlite: ensure profile %s", userID)
}
