package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/formpilot/internal/classify"
	"github.com/sells-group/formpilot/internal/model"
)

type fakeKnowledge struct {
	site     model.SiteSettings
	answers  []model.AnswerValue
	obs      []model.Observation
	keys     map[string]model.QuestionKey
	qkLoads  int
	byTypeTo []model.Taxonomy
}

func (k *fakeKnowledge) SiteSettings(_ context.Context, siteKey string) model.SiteSettings {
	s := k.site
	s.SiteKey = siteKey
	return s
}

func (k *fakeKnowledge) Observations(context.Context, string) []model.Observation { return k.obs }

func (k *fakeKnowledge) QuestionKey(_ context.Context, id string) *model.QuestionKey {
	k.qkLoads++
	q, ok := k.keys[id]
	if !ok {
		return nil
	}
	return &q
}

func (k *fakeKnowledge) Answer(_ context.Context, id string) *model.AnswerValue {
	for _, a := range k.answers {
		if a.ID == id {
			return &a
		}
	}
	return nil
}

func (k *fakeKnowledge) AnswersByType(_ context.Context, t model.Taxonomy) []model.AnswerValue {
	k.byTypeTo = append(k.byTypeTo, t)
	var out []model.AnswerValue
	for _, a := range k.answers {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

type fakeRemote struct {
	verdicts map[string]classify.RemoteResult
	got      []model.FieldContext
}

func (r *fakeRemote) ClassifyBatch(_ context.Context, fields []model.FieldContext) map[string]classify.RemoteResult {
	r.got = append(r.got, fields...)
	return r.verdicts
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func answer(id string, t model.Taxonomy, v string, priority int) model.AnswerValue {
	a := model.NewAnswerValue(id, t, v, now)
	a.Priority = priority
	return a
}

func textField(id, label string, idx int) model.FieldContext {
	return model.FieldContext{
		ID:            id,
		LabelText:     label,
		DocumentIndex: idx,
		Locator:       model.Locator{Selector: "#" + id},
		Widget:        model.WidgetSignature{Kind: model.WidgetText, InteractionPlan: model.PlanNativeSetterWithEvents},
	}
}

func newPlanner(t *testing.T, kb Knowledge, remote RemoteClassifier) *Planner {
	t.Helper()
	pipe, err := classify.NewDefault("")
	require.NoError(t, err)
	return New(kb, pipe, remote, Options{})
}

func enabledSite() model.SiteSettings {
	s := model.DefaultSiteSettings("", now)
	s.AutofillEnabled = true
	return s
}

func TestPlan_FirstNameJane(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{answer("a1", model.TaxonomyFirstName, "Jane", 0)}}
	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://jobs.example.com",
		[]model.FieldContext{textField("first", "First Name", 0)}, ModeAuto)

	require.Len(t, res.Plans, 1)
	plan := res.Plans[0]
	assert.Equal(t, "Jane", plan.Answer.Value)
	assert.GreaterOrEqual(t, plan.Confidence, 0.8)
	assert.Equal(t, model.SourceClassification, plan.Source)
	assert.Equal(t, DecisionFill, res.Decisions[0].Decision)
}

func TestPlan_SiteAutofillGate(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{
		site:    model.DefaultSiteSettings("", now),
		answers: []model.AnswerValue{answer("a1", model.TaxonomyEmail, "jane@example.com", 0)},
	}
	p := newPlanner(t, kb, nil)
	fields := []model.FieldContext{textField("email", "Email Address", 0)}

	auto := p.Plan(context.Background(), "https://a.example", fields, ModeAuto)
	assert.Empty(t, auto.Plans)
	assert.Equal(t, DecisionSuggest, auto.Decisions[0].Decision)
	assert.Equal(t, "autofill disabled for site", auto.Decisions[0].Reason)

	manual := p.Plan(context.Background(), "https://a.example", fields, ModeManual)
	require.Len(t, manual.Plans, 1)
	assert.Equal(t, "jane@example.com", manual.Plans[0].Answer.Value)
}

func TestPlan_SensitiveNeedsBothFlags(t *testing.T) {
	t.Parallel()

	gender := answer("g1", model.TaxonomyEEOGender, "Female", 0)
	require.False(t, gender.AutofillAllowed)

	field := textField("gender", "Gender", 0)
	field.Options = []string{"Male", "Female", "Decline to self-identify"}
	field.Widget.Kind = model.WidgetSelect
	field.Widget.InteractionPlan = model.PlanDirectSet

	tests := []struct {
		name    string
		allowed bool
		site    bool
		want    Decision
	}{
		{"neither", false, false, DecisionSensitive},
		{"answer only", true, false, DecisionSensitive},
		{"site only", false, true, DecisionSensitive},
		{"both", true, true, DecisionFill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := gender
			a.AutofillAllowed = tt.allowed
			site := model.DefaultSiteSettings("", now)
			site.AutofillEnabled = tt.site
			kb := &fakeKnowledge{site: site, answers: []model.AnswerValue{a}}

			res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example", []model.FieldContext{field}, ModeManual)
			require.Len(t, res.Decisions, 1)
			assert.Equal(t, tt.want, res.Decisions[0].Decision)
			assert.Equal(t, model.TaxonomyEEOGender, res.Decisions[0].Classification.Type)
			if tt.want == DecisionSensitive {
				assert.Empty(t, res.Plans)
				assert.Len(t, res.Decisions[0].Candidates, 1)
			}
		})
	}
}

func TestPlan_NonSensitiveAnswerOptOut(t *testing.T) {
	t.Parallel()

	a := answer("c1", model.TaxonomyCity, "Austin", 0)
	a.AutofillAllowed = false
	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{a}}

	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example",
		[]model.FieldContext{textField("city", "City", 0)}, ModeManual)
	assert.Equal(t, DecisionSuggest, res.Decisions[0].Decision)
}

func TestPlan_ExperienceEntriesByOccurrence(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{
		answer("older", model.TaxonomyCompanyName, "Initech", 1),
		answer("recent", model.TaxonomyCompanyName, "Globex", 0),
	}}
	// AnswersByType returns stored order; sort as the store does.
	kb.answers[0], kb.answers[1] = kb.answers[1], kb.answers[0]

	fields := []model.FieldContext{
		textField("c0", "Company Name", 0),
		textField("c1", "Company Name", 1),
		textField("c2", "Company Name", 2),
	}
	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example", fields, ModeAuto)

	require.Len(t, res.Plans, 2)
	assert.Equal(t, "Globex", res.Plans[0].Answer.Value)
	assert.Equal(t, "Initech", res.Plans[1].Answer.Value)
	assert.Equal(t, DecisionSkip, res.Decisions[2].Decision)
	assert.Equal(t, "no entry for this occurrence", res.Decisions[2].Reason)
}

func TestPlan_DocumentOrder(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{
		answer("f", model.TaxonomyFirstName, "Jane", 0),
		answer("l", model.TaxonomyLastName, "Doe", 0),
		answer("e", model.TaxonomyEmail, "jane@example.com", 0),
	}}
	fields := []model.FieldContext{
		textField("email", "Email", 2),
		textField("last", "Last Name", 1),
		textField("first", "First Name", 0),
	}
	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example", fields, ModeAuto)

	require.Len(t, res.Plans, 3)
	assert.Equal(t, "first", res.Plans[0].Field.ID)
	assert.Equal(t, "last", res.Plans[1].Field.ID)
	assert.Equal(t, "email", res.Plans[2].Field.ID)
	assert.Equal(t, "email", fields[0].ID, "input slice is not reordered")
}

func TestPlan_AutoSkipsPrefilledText(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{answer("f", model.TaxonomyFirstName, "Jane", 0)}}
	f := textField("first", "First Name", 0)
	f.CurrentValue = "Janet"
	p := newPlanner(t, kb, nil)

	auto := p.Plan(context.Background(), "https://a.example", []model.FieldContext{f}, ModeAuto)
	assert.Equal(t, DecisionSkip, auto.Decisions[0].Decision)

	manual := p.Plan(context.Background(), "https://a.example", []model.FieldContext{f}, ModeManual)
	assert.Equal(t, DecisionFill, manual.Decisions[0].Decision)
}

func TestPlan_ObservationFastPath(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{
		site:    enabledSite(),
		answers: []model.AnswerValue{answer("ref", model.TaxonomyReferralSource, "Friend", 0)},
		keys: map[string]model.QuestionKey{
			"qk1": {ID: "qk1", Type: model.TaxonomyReferralSource, Phrases: []string{"Where did you discover this role"}},
		},
		obs: []model.Observation{
			{ID: "o1", QuestionKeyID: "qk1", AnswerID: "ref", Timestamp: now},
			{ID: "o2", QuestionKeyID: "qk1", AnswerID: "ref", Timestamp: now.Add(time.Hour)},
		},
	}
	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example",
		[]model.FieldContext{textField("ref", "Where did you discover this role?", 0)}, ModeAuto)

	require.Len(t, res.Plans, 1)
	assert.Equal(t, model.SourceObservation, res.Plans[0].Source)
	assert.Equal(t, "Friend", res.Plans[0].Answer.Value)
	assert.InDelta(t, 1.0, res.Plans[0].Confidence, 1e-9)
	assert.Equal(t, 1, kb.qkLoads, "question keys load once per page")
	assert.Empty(t, kb.byTypeTo, "fast path skips classification lookup")
}

func TestPlan_ObservationSectionMismatchFallsBack(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{
		site:    enabledSite(),
		answers: []model.AnswerValue{answer("c", model.TaxonomyCity, "Austin", 0)},
		keys: map[string]model.QuestionKey{
			"qk1": {ID: "qk1", Type: model.TaxonomyCity, Phrases: []string{"City"}, SectionHints: []string{"Mailing address"}},
		},
		obs: []model.Observation{{ID: "o1", QuestionKeyID: "qk1", AnswerID: "c", Timestamp: now}},
	}
	f := textField("city", "City", 0)
	f.SectionTitle = "Emergency contact"

	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example", []model.FieldContext{f}, ModeAuto)
	require.Len(t, res.Plans, 1)
	assert.Equal(t, model.SourceClassification, res.Plans[0].Source)
}

func TestPlan_RemoteResolvesUnknownOnly(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{
		answer("f", model.TaxonomyFirstName, "Jane", 0),
		answer("c", model.TaxonomyCity, "Austin", 0),
	}}
	remote := &fakeRemote{verdicts: map[string]classify.RemoteResult{
		"odd": {Type: model.TaxonomyCity, Confidence: 0.92},
	}}
	fields := []model.FieldContext{
		textField("first", "First Name", 0),
		textField("odd", "Which metro do you call home", 1),
	}
	res := newPlanner(t, kb, remote).Plan(context.Background(), "https://a.example", fields, ModeAuto)

	require.Len(t, remote.got, 1)
	assert.Equal(t, "odd", remote.got[0].ID)
	require.Len(t, res.Plans, 2)
	assert.Equal(t, "Austin", res.Plans[1].Answer.Value)
	assert.InDelta(t, 0.92, res.Plans[1].Confidence, 1e-9)
}

func TestPlan_RemoteLowConfidenceSuggests(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{answer("c", model.TaxonomyCity, "Austin", 0)}}
	remote := &fakeRemote{verdicts: map[string]classify.RemoteResult{"odd": {Type: model.TaxonomyCity, Confidence: 0.6}}}

	res := newPlanner(t, kb, remote).Plan(context.Background(), "https://a.example",
		[]model.FieldContext{textField("odd", "Which metro do you call home", 0)}, ModeManual)
	assert.Equal(t, DecisionSuggest, res.Decisions[0].Decision)
	assert.Equal(t, "low confidence", res.Decisions[0].Reason)
}

func TestPlan_PrefersAnswerMatchingOptions(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite(), answers: []model.AnswerValue{
		answer("ca", model.TaxonomyCountry, "Canada", 0),
		answer("us", model.TaxonomyCountry, "United States", 1),
	}}
	f := textField("country", "Country", 0)
	f.Options = []string{"United States", "Mexico"}
	f.Widget.Kind = model.WidgetSelect
	f.Widget.InteractionPlan = model.PlanDirectSet

	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example", []model.FieldContext{f}, ModeAuto)
	require.Len(t, res.Plans, 1)
	assert.Equal(t, "us", res.Plans[0].Answer.ID)
}

func TestPlan_SkipsUnsupportedAndUnknown(t *testing.T) {
	t.Parallel()

	kb := &fakeKnowledge{site: enabledSite()}
	upload := textField("resume", "Resume", 0)
	upload.Widget.Kind = model.WidgetFile
	fields := []model.FieldContext{upload, textField("q", "Favourite colour of the sky", 1)}

	res := newPlanner(t, kb, nil).Plan(context.Background(), "https://a.example", fields, ModeAuto)
	assert.Empty(t, res.Plans)
	assert.Equal(t, "unsupported widget", res.Decisions[0].Reason)
	assert.Equal(t, "unrecognized", res.Decisions[1].Reason)
	assert.Equal(t, 2, res.Count(DecisionSkip))
}
