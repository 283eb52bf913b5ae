package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/formpilot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS answers (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	priority   INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS question_keys (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id              TEXT PRIMARY KEY,
	site_key        TEXT NOT NULL,
	question_key_id TEXT NOT NULL,
	answer_id       TEXT NOT NULL,
	data            TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_observations (
	id         TEXT PRIMARY KEY,
	dedup_key  TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS site_settings (
	site_key   TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_log (
	id   TEXT PRIMARY KEY,
	at   DATETIME NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answers_type ON answers(type, priority);
CREATE INDEX IF NOT EXISTS idx_observations_site ON observations(site_key);
CREATE INDEX IF NOT EXISTS idx_observations_link ON observations(site_key, question_key_id, answer_id);
CREATE INDEX IF NOT EXISTS idx_observations_answer ON observations(answer_id);
CREATE INDEX IF NOT EXISTS idx_pending_dedup ON pending_observations(dedup_key, status);
CREATE INDEX IF NOT EXISTS idx_activity_at ON activity_log(at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Answers ---

func (s *SQLiteStore) ListAnswers(ctx context.Context) ([]model.AnswerValue, error) {
	return queryJSON[model.AnswerValue](ctx, s.db, "answers",
		`SELECT data FROM answers ORDER BY type, priority, updated_at DESC`)
}

func (s *SQLiteStore) ListAnswersByType(ctx context.Context, t model.Taxonomy) ([]model.AnswerValue, error) {
	return queryJSON[model.AnswerValue](ctx, s.db, "answers",
		`SELECT data FROM answers WHERE type = ? ORDER BY priority, updated_at DESC`, string(t))
}

func (s *SQLiteStore) GetAnswer(ctx context.Context, id string) (*model.AnswerValue, error) {
	a, err := queryOneJSON[model.AnswerValue](ctx, s.db, `SELECT data FROM answers WHERE id = ?`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get answer %s", id)
	}
	if a == nil {
		return nil, eris.Wrapf(ErrNotFound, "answer %s", id)
	}
	return a, nil
}

func (s *SQLiteStore) PutAnswer(ctx context.Context, a model.AnswerValue) error {
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal answer")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answers (id, type, priority, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET type = excluded.type, priority = excluded.priority,
		 data = excluded.data, updated_at = excluded.updated_at`,
		a.ID, string(a.Type), a.Priority, string(data), a.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put answer %s", a.ID)
}

func (s *SQLiteStore) DeleteAnswer(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete answer")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE answer_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete observations for answer %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete answer %s", id)
	}
	if err := checkRowsAffected(res, "answer", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete answer")
}

// --- Question keys ---

func (s *SQLiteStore) ListQuestionKeys(ctx context.Context) ([]model.QuestionKey, error) {
	return queryJSON[model.QuestionKey](ctx, s.db, "question keys",
		`SELECT data FROM question_keys ORDER BY updated_at DESC`)
}

func (s *SQLiteStore) GetQuestionKey(ctx context.Context, id string) (*model.QuestionKey, error) {
	q, err := queryOneJSON[model.QuestionKey](ctx, s.db, `SELECT data FROM question_keys WHERE id = ?`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get question key %s", id)
	}
	if q == nil {
		return nil, eris.Wrapf(ErrNotFound, "question key %s", id)
	}
	return q, nil
}

func (s *SQLiteStore) PutQuestionKey(ctx context.Context, q model.QuestionKey) error {
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal question key")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO question_keys (id, type, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET type = excluded.type, data = excluded.data, updated_at = excluded.updated_at`,
		q.ID, string(q.Type), string(data), q.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put question key %s", q.ID)
}

// --- Observations ---

func (s *SQLiteStore) ListObservations(ctx context.Context, siteKey string) ([]model.Observation, error) {
	if siteKey == "" {
		return queryJSON[model.Observation](ctx, s.db, "observations",
			`SELECT data FROM observations ORDER BY created_at DESC`)
	}
	return queryJSON[model.Observation](ctx, s.db, "observations",
		`SELECT data FROM observations WHERE site_key = ? ORDER BY created_at DESC`, siteKey)
}

func (s *SQLiteStore) FindObservation(ctx context.Context, siteKey, questionKeyID, answerID string) (*model.Observation, error) {
	o, err := queryOneJSON[model.Observation](ctx, s.db,
		`SELECT data FROM observations WHERE site_key = ? AND question_key_id = ? AND answer_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		siteKey, questionKeyID, answerID)
	return o, eris.Wrap(err, "sqlite: find observation")
}

func (s *SQLiteStore) InsertObservation(ctx context.Context, o model.Observation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal observation")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO observations (id, site_key, question_key_id, answer_id, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.SiteKey, o.QuestionKeyID, o.AnswerID, string(data), o.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert observation %s", o.ID)
}

// --- Pending observations ---

func (s *SQLiteStore) ListPending(ctx context.Context, status model.PendingStatus) ([]model.PendingObservation, error) {
	if status == "" {
		return queryJSON[model.PendingObservation](ctx, s.db, "pending",
			`SELECT data FROM pending_observations ORDER BY updated_at DESC`)
	}
	return queryJSON[model.PendingObservation](ctx, s.db, "pending",
		`SELECT data FROM pending_observations WHERE status = ? ORDER BY updated_at DESC`, string(status))
}

func (s *SQLiteStore) GetPending(ctx context.Context, id string) (*model.PendingObservation, error) {
	p, err := queryOneJSON[model.PendingObservation](ctx, s.db, `SELECT data FROM pending_observations WHERE id = ?`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pending %s", id)
	}
	if p == nil {
		return nil, eris.Wrapf(ErrNotFound, "pending observation %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) FindPendingByDedupKey(ctx context.Context, dedupKey string) (*model.PendingObservation, error) {
	p, err := queryOneJSON[model.PendingObservation](ctx, s.db,
		`SELECT data FROM pending_observations WHERE dedup_key = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`,
		dedupKey, string(model.PendingStatusPending))
	return p, eris.Wrap(err, "sqlite: find pending")
}

func (s *SQLiteStore) PutPending(ctx context.Context, p model.PendingObservation) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pending")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_observations (id, dedup_key, status, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dedup_key = excluded.dedup_key, status = excluded.status,
		 data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, p.DedupKey(), string(p.Status), string(data), p.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put pending %s", p.ID)
}

func (s *SQLiteStore) DeletePending(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_observations WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete pending %s", id)
	}
	return checkRowsAffected(res, "pending observation", id)
}

// --- Site settings ---

func (s *SQLiteStore) GetSiteSettings(ctx context.Context, siteKey string) (*model.SiteSettings, error) {
	ss, err := queryOneJSON[model.SiteSettings](ctx, s.db, `SELECT data FROM site_settings WHERE site_key = ?`, siteKey)
	return ss, eris.Wrapf(err, "sqlite: get site settings %s", siteKey)
}

func (s *SQLiteStore) PutSiteSettings(ctx context.Context, ss model.SiteSettings) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal site settings")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO site_settings (site_key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(site_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		ss.SiteKey, string(data), ss.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put site settings %s", ss.SiteKey)
}

// --- Activity log ---

func (s *SQLiteStore) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal activity")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity_log (id, at, data) VALUES (?, ?, ?)`,
		e.ID, e.At.UTC(), string(data),
	)
	return eris.Wrap(err, "sqlite: append activity")
}

func (s *SQLiteStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	return queryJSON[model.ActivityEntry](ctx, s.db, "activity",
		`SELECT data FROM activity_log ORDER BY at DESC LIMIT ?`, limit)
}

// --- Documents ---

func (s *SQLiteStore) GetDocument(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", name)
	}
	return data, nil
}

func (s *SQLiteStore) PutDocument(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put document %s", name)
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	return eris.Wrapf(err, "sqlite: delete document %s", name)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func queryJSON[T any](ctx context.Context, db *sql.DB, what, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", what)
	}
	defer rows.Close() //nolint:errcheck

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", what)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal %s", what)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: list %s iterate", what)
}

// queryOneJSON returns (nil, nil) when no row matches.
func queryOneJSON[T any](ctx context.Context, db *sql.DB, query string, args ...any) (*T, error) {
	var data string
	err := db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, eris.Wrap(err, "unmarshal")
	}
	return &v, nil
}
