package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool. It backs shared
// deployments where several devices sync one profile.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS answers (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	priority   INTEGER NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS question_keys (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id              TEXT PRIMARY KEY,
	site_key        TEXT NOT NULL,
	question_key_id TEXT NOT NULL,
	answer_id       TEXT NOT NULL,
	data            JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_observations (
	id         TEXT PRIMARY KEY,
	dedup_key  TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS site_settings (
	site_key   TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_log (
	id   TEXT PRIMARY KEY,
	at   TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_answers_type ON answers(type, priority);
CREATE INDEX IF NOT EXISTS idx_observations_site ON observations(site_key);
CREATE INDEX IF NOT EXISTS idx_observations_link ON observations(site_key, question_key_id, answer_id);
CREATE INDEX IF NOT EXISTS idx_observations_answer ON observations(answer_id);
CREATE INDEX IF NOT EXISTS idx_pending_dedup ON pending_observations(dedup_key, status);
CREATE INDEX IF NOT EXISTS idx_activity_at ON activity_log(at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Answers ---

func (s *PostgresStore) ListAnswers(ctx context.Context) ([]model.AnswerValue, error) {
	return pgQueryJSON[model.AnswerValue](ctx, s.pool, "answers",
		`SELECT data FROM answers ORDER BY type, priority, updated_at DESC`)
}

func (s *PostgresStore) ListAnswersByType(ctx context.Context, t model.Taxonomy) ([]model.AnswerValue, error) {
	return pgQueryJSON[model.AnswerValue](ctx, s.pool, "answers",
		`SELECT data FROM answers WHERE type = $1 ORDER BY priority, updated_at DESC`, string(t))
}

func (s *PostgresStore) GetAnswer(ctx context.Context, id string) (*model.AnswerValue, error) {
	a, err := pgQueryOneJSON[model.AnswerValue](ctx, s.pool, `SELECT data FROM answers WHERE id = $1`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get answer %s", id)
	}
	if a == nil {
		return nil, eris.Wrapf(ErrNotFound, "answer %s", id)
	}
	return a, nil
}

func (s *PostgresStore) PutAnswer(ctx context.Context, a model.AnswerValue) error {
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal answer")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO answers (id, type, priority, data, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, priority = EXCLUDED.priority,
		 data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		a.ID, string(a.Type), a.Priority, data, a.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put answer %s", a.ID)
}

func (s *PostgresStore) DeleteAnswer(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete answer")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM observations WHERE answer_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete observations for answer %s", id)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM answers WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete answer %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "answer %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete answer")
}

// --- Question keys ---

func (s *PostgresStore) ListQuestionKeys(ctx context.Context) ([]model.QuestionKey, error) {
	return pgQueryJSON[model.QuestionKey](ctx, s.pool, "question keys",
		`SELECT data FROM question_keys ORDER BY updated_at DESC`)
}

func (s *PostgresStore) GetQuestionKey(ctx context.Context, id string) (*model.QuestionKey, error) {
	q, err := pgQueryOneJSON[model.QuestionKey](ctx, s.pool, `SELECT data FROM question_keys WHERE id = $1`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get question key %s", id)
	}
	if q == nil {
		return nil, eris.Wrapf(ErrNotFound, "question key %s", id)
	}
	return q, nil
}

func (s *PostgresStore) PutQuestionKey(ctx context.Context, q model.QuestionKey) error {
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal question key")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO question_keys (id, type, data, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		q.ID, string(q.Type), data, q.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put question key %s", q.ID)
}

// --- Observations ---

func (s *PostgresStore) ListObservations(ctx context.Context, siteKey string) ([]model.Observation, error) {
	if siteKey == "" {
		return pgQueryJSON[model.Observation](ctx, s.pool, "observations",
			`SELECT data FROM observations ORDER BY created_at DESC`)
	}
	return pgQueryJSON[model.Observation](ctx, s.pool, "observations",
		`SELECT data FROM observations WHERE site_key = $1 ORDER BY created_at DESC`, siteKey)
}

func (s *PostgresStore) FindObservation(ctx context.Context, siteKey, questionKeyID, answerID string) (*model.Observation, error) {
	o, err := pgQueryOneJSON[model.Observation](ctx, s.pool,
		`SELECT data FROM observations WHERE site_key = $1 AND question_key_id = $2 AND answer_id = $3
		 ORDER BY created_at DESC LIMIT 1`,
		siteKey, questionKeyID, answerID)
	return o, eris.Wrap(err, "postgres: find observation")
}

func (s *PostgresStore) InsertObservation(ctx context.Context, o model.Observation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal observation")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO observations (id, site_key, question_key_id, answer_id, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.SiteKey, o.QuestionKeyID, o.AnswerID, data, o.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert observation %s", o.ID)
}

// --- Pending observations ---

func (s *PostgresStore) ListPending(ctx context.Context, status model.PendingStatus) ([]model.PendingObservation, error) {
	if status == "" {
		return pgQueryJSON[model.PendingObservation](ctx, s.pool, "pending",
			`SELECT data FROM pending_observations ORDER BY updated_at DESC`)
	}
	return pgQueryJSON[model.PendingObservation](ctx, s.pool, "pending",
		`SELECT data FROM pending_observations WHERE status = $1 ORDER BY updated_at DESC`, string(status))
}

func (s *PostgresStore) GetPending(ctx context.Context, id string) (*model.PendingObservation, error) {
	p, err := pgQueryOneJSON[model.PendingObservation](ctx, s.pool, `SELECT data FROM pending_observations WHERE id = $1`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pending %s", id)
	}
	if p == nil {
		return nil, eris.Wrapf(ErrNotFound, "pending observation %s", id)
	}
	return p, nil
}

func (s *PostgresStore) FindPendingByDedupKey(ctx context.Context, dedupKey string) (*model.PendingObservation, error) {
	p, err := pgQueryOneJSON[model.PendingObservation](ctx, s.pool,
		`SELECT data FROM pending_observations WHERE dedup_key = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`,
		dedupKey, string(model.PendingStatusPending))
	return p, eris.Wrap(err, "postgres: find pending")
}

func (s *PostgresStore) PutPending(ctx context.Context, p model.PendingObservation) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pending")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_observations (id, dedup_key, status, data, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET dedup_key = EXCLUDED.dedup_key, status = EXCLUDED.status,
		 data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		p.ID, p.DedupKey(), string(p.Status), data, p.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put pending %s", p.ID)
}

func (s *PostgresStore) DeletePending(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_observations WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete pending %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pending observation %s", id)
	}
	return nil
}

// --- Site settings ---

func (s *PostgresStore) GetSiteSettings(ctx context.Context, siteKey string) (*model.SiteSettings, error) {
	ss, err := pgQueryOneJSON[model.SiteSettings](ctx, s.pool, `SELECT data FROM site_settings WHERE site_key = $1`, siteKey)
	return ss, eris.Wrapf(err, "postgres: get site settings %s", siteKey)
}

func (s *PostgresStore) PutSiteSettings(ctx context.Context, ss model.SiteSettings) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal site settings")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO site_settings (site_key, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (site_key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		ss.SiteKey, data, ss.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put site settings %s", ss.SiteKey)
}

// --- Activity log ---

func (s *PostgresStore) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal activity")
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO activity_log (id, at, data) VALUES ($1, $2, $3)`, e.ID, e.At.UTC(), data)
	return eris.Wrap(err, "postgres: append activity")
}

func (s *PostgresStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	return pgQueryJSON[model.ActivityEntry](ctx, s.pool, "activity",
		`SELECT data FROM activity_log ORDER BY at DESC LIMIT $1`, limit)
}

// --- Documents ---

func (s *PostgresStore) GetDocument(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", name)
	}
	return data, nil
}

func (s *PostgresStore) PutDocument(ctx context.Context, name string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (name, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		name, data,
	)
	return eris.Wrapf(err, "postgres: put document %s", name)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE name = $1`, name)
	return eris.Wrapf(err, "postgres: delete document %s", name)
}

func pgQueryJSON[T any](ctx context.Context, pool Pool, what, query string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", what)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", what)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal %s", what)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: list %s iterate", what)
}

// pgQueryOneJSON returns (nil, nil) when no row matches.
func pgQueryOneJSON[T any](ctx context.Context, pool Pool, query string, args ...any) (*T, error) {
	var data []byte
	err := pool.QueryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrap(err, "unmarshal")
	}
	return &v, nil
}
