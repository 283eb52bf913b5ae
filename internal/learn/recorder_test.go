package learn

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/formpilot/internal/classify"
	"github.com/sells-group/formpilot/internal/knowledge"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/normalize"
	"github.com/sells-group/formpilot/internal/store"
)

// countingStore counts every write that reaches the backend.
type countingStore struct {
	store.Store
	writes atomic.Int64
}

func (c *countingStore) hit() { c.writes.Add(1) }

func (c *countingStore) PutAnswer(ctx context.Context, a model.AnswerValue) error {
	c.hit()
	return c.Store.PutAnswer(ctx, a)
}

func (c *countingStore) DeleteAnswer(ctx context.Context, id string) error {
	c.hit()
	return c.Store.DeleteAnswer(ctx, id)
}

func (c *countingStore) PutQuestionKey(ctx context.Context, q model.QuestionKey) error {
	c.hit()
	return c.Store.PutQuestionKey(ctx, q)
}

func (c *countingStore) InsertObservation(ctx context.Context, o model.Observation) error {
	c.hit()
	return c.Store.InsertObservation(ctx, o)
}

func (c *countingStore) PutPending(ctx context.Context, p model.PendingObservation) error {
	c.hit()
	return c.Store.PutPending(ctx, p)
}

func (c *countingStore) DeletePending(ctx context.Context, id string) error {
	c.hit()
	return c.Store.DeletePending(ctx, id)
}

func (c *countingStore) PutSiteSettings(ctx context.Context, s model.SiteSettings) error {
	c.hit()
	return c.Store.PutSiteSettings(ctx, s)
}

func (c *countingStore) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	c.hit()
	return c.Store.AppendActivity(ctx, e)
}

func (c *countingStore) PutDocument(ctx context.Context, name string, data []byte) error {
	c.hit()
	return c.Store.PutDocument(ctx, name, data)
}

type consent struct{ data atomic.Bool }

func (c *consent) DataCollection(context.Context) bool { return c.data.Load() }

type fixture struct {
	st      *countingStore
	kb      *knowledge.Store
	consent *consent
	rec     *Recorder
}

func newFixture(t *testing.T, granted bool) *fixture {
	t.Helper()
	base, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "learn.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() }) //nolint:errcheck

	pipe, err := classify.NewDefault("")
	require.NoError(t, err)

	f := &fixture{st: &countingStore{Store: base}, consent: &consent{}}
	f.consent.data.Store(granted)
	f.kb = knowledge.New(f.st)
	f.rec = New(f.kb, pipe, f.consent, normalize.New(nil, nil, 0))
	return f
}

func edit(formID, label, value string) Edit {
	return Edit{
		URL:    "https://boards.example.com/jobs/42",
		FormID: formID,
		Value:  value,
		Field: model.FieldContext{
			LabelText: label,
			Locator:   model.Locator{Selector: "#" + formID},
			Widget:    model.WidgetSignature{Kind: model.WidgetText, InteractionPlan: model.PlanNativeSetterWithEvents},
		},
	}
}

func TestObserve_NoConsentMeansNoWrites(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()

	p, err := f.rec.Observe(ctx, edit("f1", "First Name", "Jane"))
	assert.Nil(t, p)
	assert.True(t, eris.Is(err, ErrDisabled))
	assert.Zero(t, f.st.writes.Load())
	assert.Empty(t, f.kb.Pending(ctx, ""))
}

func TestObserve_NoConsentIgnoresRecordEnabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()
	on := true
	_, err := f.kb.UpdateSiteSettings(ctx, "https://boards.example.com", knowledge.SiteUpdate{RecordEnabled: &on})
	require.NoError(t, err)
	before := f.st.writes.Load()

	_, err = f.rec.Observe(ctx, edit("f1", "Email", "jane@example.com"))
	assert.True(t, eris.Is(err, ErrDisabled))
	_, err = f.rec.Commit(ctx, "anything", model.TaxonomyEmail)
	assert.True(t, eris.Is(err, ErrDisabled))
	assert.Equal(t, before, f.st.writes.Load())
}

func TestObserve_SiteRecordingOff(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()
	off := false
	_, err := f.kb.UpdateSiteSettings(ctx, "https://boards.example.com", knowledge.SiteUpdate{RecordEnabled: &off})
	require.NoError(t, err)
	before := f.st.writes.Load()

	_, err = f.rec.Observe(ctx, edit("f1", "Email", "jane@example.com"))
	assert.True(t, eris.Is(err, ErrDisabled))
	assert.Equal(t, before, f.st.writes.Load())
}

func TestObserve_StagesAndDeduplicates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.rec.Observe(ctx, edit("f1", "First Name", "Jan"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, model.TaxonomyFirstName, first.Type)
	assert.Equal(t, model.PendingStatusPending, first.Status)
	assert.Equal(t, "https://boards.example.com", first.SiteKey)

	second, err := f.rec.Observe(ctx, edit("f1", "First Name", "Jane"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.QuestionKeyID, second.QuestionKeyID)

	pending := f.rec.Pending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, "Jane", pending[0].RawValue)
	assert.Empty(t, f.kb.Answers(ctx), "staging never creates answers")
}

func TestObserve_SkipsSecretAndEmptyInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	pw := edit("f1", "Password", "hunter2")
	pw.Field.Attributes = map[string]string{"type": "password"}
	p, err := f.rec.Observe(ctx, pw)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = f.rec.Observe(ctx, edit("f1", "First Name", "   "))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, f.kb.Pending(ctx, ""))
}

func TestCommit_EqualValuesShareOneAnswer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	p1, err := f.rec.Observe(ctx, edit("form-a", "First Name", "Jane"))
	require.NoError(t, err)
	a1, err := f.rec.Commit(ctx, p1.ID, "")
	require.NoError(t, err)

	p2, err := f.rec.Observe(ctx, edit("form-b", "First Name", "jane"))
	require.NoError(t, err)
	assert.Equal(t, p1.QuestionKeyID, p2.QuestionKeyID)
	a2, err := f.rec.Commit(ctx, p2.ID, "")
	require.NoError(t, err)

	assert.Equal(t, a1.ID, a2.ID)
	answers := f.kb.AnswersByType(ctx, model.TaxonomyFirstName)
	require.Len(t, answers, 1)
	assert.LessOrEqual(t, len(answers[0].Aliases), 1)
	assert.Len(t, f.kb.Observations(ctx, "https://boards.example.com"), 1)
	assert.Empty(t, f.rec.Pending(ctx))

	keys := f.kb.QuestionKeys(ctx)
	require.Len(t, keys, 1)
	assert.Equal(t, model.TaxonomyFirstName, keys[0].Type)
}

func TestCommit_MergesNewSpellingAsAlias(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.kb.AddAnswer(ctx, knowledge.AnswerInput{Type: model.TaxonomyFullName, Value: "Jane Doe"})
	require.NoError(t, err)

	p, err := f.rec.Observe(ctx, edit("f1", "Full Name", "doe, jane"))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.Value)

	a, err := f.rec.Commit(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", a.Value)
	assert.Contains(t, a.Aliases, "doe, jane")
	assert.Len(t, f.kb.AnswersByType(ctx, model.TaxonomyFullName), 1)
}

func TestCommit_UnknownTypeNeedsOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	p, err := f.rec.Observe(ctx, edit("f1", "Favourite colour of the sky", "Teal"))
	require.NoError(t, err)
	require.Equal(t, model.TaxonomyUnknown, p.Type)

	_, err = f.rec.Commit(ctx, p.ID, "")
	assert.True(t, eris.Is(err, ErrUnknownType))

	a, err := f.rec.Commit(ctx, p.ID, model.TaxonomyReferralSource)
	require.NoError(t, err)
	assert.Equal(t, model.TaxonomyReferralSource, a.Type)

	_, err = f.rec.Commit(ctx, p.ID, model.TaxonomyReferralSource)
	assert.True(t, eris.Is(err, ErrNotPending))
}

func TestCommit_SensitiveStaysNonAutofill(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	p, err := f.rec.Observe(ctx, edit("f1", "Desired salary", "150000"))
	require.NoError(t, err)
	a, err := f.rec.Commit(ctx, p.ID, model.TaxonomySalaryExpectation)
	require.NoError(t, err)
	assert.False(t, a.AutofillAllowed)
}

func TestDiscard_LeavesAnswersUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	p, err := f.rec.Observe(ctx, edit("f1", "Email", "jane@example.com"))
	require.NoError(t, err)
	require.NoError(t, f.rec.Discard(ctx, p.ID))

	assert.Empty(t, f.kb.Answers(ctx))
	assert.Empty(t, f.kb.QuestionKeys(ctx))
	assert.Empty(t, f.rec.Pending(ctx))
	assert.Error(t, f.rec.Discard(ctx, p.ID))

	activity := f.kb.Activity(ctx, 10)
	require.NotEmpty(t, activity)
	assert.Equal(t, model.ActivityDiscard, activity[0].Action)
}

func TestDiscard_AfterRevocationWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	p, err := f.rec.Observe(ctx, edit("f1", "Email", "jane@example.com"))
	require.NoError(t, err)

	f.consent.data.Store(false)
	before := f.st.writes.Load()
	activity := len(f.kb.Activity(ctx, 100))

	err = f.rec.Discard(ctx, p.ID)
	assert.True(t, eris.Is(err, ErrDisabled))
	assert.Equal(t, before, f.st.writes.Load())
	assert.Len(t, f.kb.Activity(ctx, 100), activity)

	f.consent.data.Store(true)
	assert.Len(t, f.rec.Pending(ctx), 1)
}
