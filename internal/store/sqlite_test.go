package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/formpilot/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Answers ---

func TestSQLite_Answers_PutGetList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	a := model.NewAnswerValue("a1", model.TaxonomyFirstName, "Jane", now)
	require.NoError(t, st.PutAnswer(ctx, a))

	got, err := st.GetAnswer(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Value)
	assert.Equal(t, model.TaxonomyFirstName, got.Type)

	a.Value = "Janet"
	a.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, st.PutAnswer(ctx, a))

	all, err := st.ListAnswers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Janet", all[0].Value)
}

func TestSQLite_Answers_ByTypeOrderedByPriority(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older := model.NewAnswerValue("c2", model.TaxonomyCompanyName, "Initech", now)
	older.Priority = 1
	recent := model.NewAnswerValue("c1", model.TaxonomyCompanyName, "Globex", now)
	recent.Priority = 0
	require.NoError(t, st.PutAnswer(ctx, older))
	require.NoError(t, st.PutAnswer(ctx, recent))
	require.NoError(t, st.PutAnswer(ctx, model.NewAnswerValue("e1", model.TaxonomyEmail, "j@x.io", now)))

	got, err := st.ListAnswersByType(ctx, model.TaxonomyCompanyName)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Globex", got[0].Value)
	assert.Equal(t, "Initech", got[1].Value)
}

func TestSQLite_Answers_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetAnswer(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_DeleteAnswer_CascadesObservations(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.PutAnswer(ctx, model.NewAnswerValue("a1", model.TaxonomyEmail, "j@x.io", now)))
	require.NoError(t, st.InsertObservation(ctx, model.Observation{
		ID: "o1", Timestamp: now, SiteKey: "https://jobs.example.com", QuestionKeyID: "q1", AnswerID: "a1",
	}))

	require.NoError(t, st.DeleteAnswer(ctx, "a1"))

	obs, err := st.ListObservations(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, obs)

	err = st.DeleteAnswer(ctx, "a1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Question keys & observations ---

func TestSQLite_QuestionKeyAndObservation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	q := model.QuestionKey{ID: "q1", Type: model.TaxonomyEmail, Phrases: []string{"Email Address"}, UpdatedAt: now}
	require.NoError(t, st.PutQuestionKey(ctx, q))

	got, err := st.GetQuestionKey(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Email Address"}, got.Phrases)

	loc := &model.Locator{Selector: "#email"}
	require.NoError(t, st.InsertObservation(ctx, model.Observation{
		ID: "o1", Timestamp: now, SiteKey: "https://a.example", QuestionKeyID: "q1", AnswerID: "a1",
		FieldLocator: loc, Confidence: 0.9,
	}))
	require.NoError(t, st.InsertObservation(ctx, model.Observation{
		ID: "o2", Timestamp: now, SiteKey: "https://b.example", QuestionKeyID: "q1", AnswerID: "a1",
	}))

	found, err := st.FindObservation(ctx, "https://a.example", "q1", "a1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "#email", found.FieldLocator.Selector)

	missing, err := st.FindObservation(ctx, "https://c.example", "q1", "a1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	siteObs, err := st.ListObservations(ctx, "https://b.example")
	require.NoError(t, err)
	require.Len(t, siteObs, 1)
	assert.Equal(t, "o2", siteObs[0].ID)
}

// --- Pending ---

func TestSQLite_Pending_DedupLookup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := model.PendingObservation{
		ID: "p1", SiteKey: "https://a.example", FormID: "f", QuestionKeyID: "q1",
		Status: model.PendingStatusPending, RawValue: "Jane", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.PutPending(ctx, p))

	found, err := st.FindPendingByDedupKey(ctx, p.DedupKey())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "p1", found.ID)

	p.Status = model.PendingStatusCommitted
	require.NoError(t, st.PutPending(ctx, p))

	found, err = st.FindPendingByDedupKey(ctx, p.DedupKey())
	require.NoError(t, err)
	assert.Nil(t, found)

	committed, err := st.ListPending(ctx, model.PendingStatusCommitted)
	require.NoError(t, err)
	assert.Len(t, committed, 1)

	require.NoError(t, st.DeletePending(ctx, "p1"))
	_, err = st.GetPending(ctx, "p1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Site settings, activity, documents ---

func TestSQLite_SiteSettings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.GetSiteSettings(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Nil(t, got)

	ss := model.DefaultSiteSettings("https://a.example", time.Now())
	ss.AutofillEnabled = true
	require.NoError(t, st.PutSiteSettings(ctx, ss))

	got, err = st.GetSiteSettings(ctx, "https://a.example")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.AutofillEnabled)
	assert.True(t, got.RecordEnabled)
}

func TestSQLite_ActivityLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, action := range []string{"fill", "undo", "commit"} {
		require.NoError(t, st.AppendActivity(ctx, model.ActivityEntry{
			ID: action, At: base.Add(time.Duration(i) * time.Second), Action: action,
		}))
	}

	got, err := st.ListActivity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "commit", got[0].Action)
	assert.Equal(t, "undo", got[1].Action)
}

func TestSQLite_Documents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	data, err := st.GetDocument(ctx, DocLLMConfig)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, st.PutDocument(ctx, DocLLMConfig, []byte(`{"v":1}`)))
	require.NoError(t, st.PutDocument(ctx, DocLLMConfig, []byte(`{"v":2}`)))

	data, err = st.GetDocument(ctx, DocLLMConfig)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	require.NoError(t, st.DeleteDocument(ctx, DocLLMConfig))
	data, err = st.GetDocument(ctx, DocLLMConfig)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	list, err := st.ListAnswers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
