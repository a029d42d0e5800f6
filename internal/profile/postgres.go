package profile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/taste-trails/localguide/internal/model"
)

// Pool abstracts pgxpool.Pool for testability with pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"get_profile":   `SELECT preferences, weights, authenticated FROM profiles WHERE user_id = $1`,
	"get_visits":    `SELECT name, category, rating, visited_at FROM visits WHERE user_id = $1 ORDER BY visited_at DESC`,
	"get_favorites": `SELECT name, category, saved_at FROM favorites WHERE user_id = $1 ORDER BY saved_at DESC`,
	"get_searches":  `SELECT query FROM search_log WHERE user_id = $1 ORDER BY searched_at DESC LIMIT 50`,
	"log_search":    `INSERT INTO search_log (user_id, query, searched_at) VALUES ($1, $2, $3)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id       TEXT PRIMARY KEY,
	preferences   JSONB NOT NULL DEFAULT '{}',
	weights       JSONB NOT NULL DEFAULT '{}',
	authenticated BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS visits (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES profiles(user_id),
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	rating     SMALLINT NOT NULL DEFAULT 0,
	visited_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS favorites (
	id       BIGSERIAL PRIMARY KEY,
	user_id  TEXT NOT NULL REFERENCES profiles(user_id),
	name     TEXT NOT NULL,
	category TEXT NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL,
	UNIQUE(user_id, name)
);

CREATE TABLE IF NOT EXISTS search_log (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES profiles(user_id),
	query       TEXT NOT NULL,
	searched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_visits_user_id ON visits(user_id);
CREATE INDEX IF NOT EXISTS idx_favorites_user_id ON favorites(user_id);
CREATE INDEX IF NOT EXISTS idx_search_log_user_id ON search_log(user_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var prefsJSON, weightsJSON []byte
	var authenticated bool
	err := s.pool.QueryRow(ctx,
		`SELECT preferences, weights, authenticated FROM profiles WHERE user_id = $1`, userID,
	).Scan(&prefsJSON, &weightsJSON, &authenticated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AnonymousProfile(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", userID)
	}

	p := &model.UserProfile{UserID: userID, Authenticated: authenticated}
	if err := json.Unmarshal(prefsJSON, &p.Preferences); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal preferences")
	}
	if err := json.Unmarshal(weightsJSON, &p.RecommendationWeights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal weights")
	}

	if p.History.VisitedPlaces, err = s.visits(ctx, userID); err != nil {
		return nil, err
	}
	if p.History.Favorites, err = s.favoritesFor(ctx, userID); err != nil {
		return nil, err
	}
	if p.History.SearchLog, err = s.searches(ctx, userID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) visits(ctx context.Context, userID string) ([]model.VisitedPlace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, category, rating, visited_at FROM visits WHERE user_id = $1 ORDER BY visited_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query visits")
	}
	defer rows.Close()

	var out []model.VisitedPlace
	for rows.Next() {
		var v model.VisitedPlace
		if err := rows.Scan(&v.Name, &v.Category, &v.Rating, &v.VisitedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan visit")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: visits rows")
}

func (s *PostgresStore) favoritesFor(ctx context.Context, userID string) ([]model.FavoritePlace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, category, saved_at FROM favorites WHERE user_id = $1 ORDER BY saved_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query favorites")
	}
	defer rows.Close()

	var out []model.FavoritePlace
	for rows.Next() {
		var f model.FavoritePlace
		if err := rows.Scan(&f.Name, &f.Category, &f.SavedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan favorite")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: favorites rows")
}

func (s *PostgresStore) searches(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT query FROM search_log WHERE user_id = $1 ORDER BY searched_at DESC LIMIT 50`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query search log")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search rows")
}

func (s *PostgresStore) UpsertPreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal preferences")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, preferences) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = now()`,
		userID, prefsJSON)
	return eris.Wrapf(err, "postgres: upsert preferences %s", userID)
}

func (s *PostgresStore) LogSearch(ctx context.Context, userID, query string) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_log (user_id, query, searched_at) VALUES ($1, $2, $3)`,
		userID, query, time.Now().UTC())
	return eris.Wrapf(err, "postgres: log search %s", userID)
}

func (s *PostgresStore) RecordVisit(ctx context.Context, userID string, visit model.VisitedPlace) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}
	visitedAt := visit.VisitedAt
	if visitedAt.IsZero() {
		visitedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO visits (user_id, name, category, rating, visited_at) VALUES ($1, $2, $3, $4, $5)`,
		userID, visit.Name, normalizeCategory(visit.Category), visit.Rating, visitedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: record visit %s", userID)
	}
	return s.bumpWeight(ctx, userID, visit.Category, visit.Rating)
}

func (s *PostgresStore) AddFavorite(ctx context.Context, userID string, fav model.FavoritePlace) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}
	savedAt := fav.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO favorites (user_id, name, category, saved_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, name) DO NOTHING`,
		userID, fav.Name, normalizeCategory(fav.Category), savedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: add favorite %s", userID)
	}
	return s.bumpWeight(ctx, userID, fav.Category, 5)
}

func (s *PostgresStore) bumpWeight(ctx context.Context, userID, category string, rating int) error {
	category = normalizeCategory(category)
	if category == "" {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin weight update")
	}
	defer tx.Rollback(ctx)

	var weightsJSON []byte
	if err := tx.QueryRow(ctx,
		`SELECT weights FROM profiles WHERE user_id = $1 FOR UPDATE`, userID).Scan(&weightsJSON); err != nil {
		return eris.Wrapf(err, "postgres: load weights %s", userID)
	}

	weights := map[string]float64{}
	if err := json.Unmarshal(weightsJSON, &weights); err != nil {
		return eris.Wrap(err, "postgres: unmarshal weights")
	}
	current, ok := weights[category]
	if !ok {
		current = 1.0
	}
	weights[category] = adjustWeight(current, rating)

	updated, err := json.Marshal(weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET weights = $1, updated_at = now() WHERE user_id = $2`,
		updated, userID); err != nil {
		return eris.Wrapf(err, "postgres: update weights %s", userID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit weight update")
}

func (s *PostgresStore) ensureProfile(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	return eris.Wrapf(err, "postgres: ensure profile %s", userID)
}
