package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/formpilot/internal/model"
)

type stubParser struct {
	name     string
	priority int
	cands    []model.CandidateType
	panics   bool
}

func (s *stubParser) Name() string                     { return s.name }
func (s *stubParser) Priority() int                    { return s.priority }
func (s *stubParser) CanParse(model.FieldContext) bool { return true }
func (s *stubParser) Parse(model.FieldContext) []model.CandidateType {
	if s.panics {
		panic("boom")
	}
	out := make([]model.CandidateType, len(s.cands))
	for i, c := range s.cands {
		c.Parser = s.name
		c.Priority = s.priority
		out[i] = c
	}
	return out
}

func newDefaultPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewDefault("", opts...)
	require.NoError(t, err)
	return p
}

func TestMaxMerge_HighestScoreWins(t *testing.T) {
	t.Parallel()

	a := &stubParser{name: "a", priority: 50, cands: []model.CandidateType{
		{Type: model.TaxonomyEmail, Score: 0.6},
	}}
	b := &stubParser{name: "b", priority: 40, cands: []model.CandidateType{
		{Type: model.TaxonomyEmail, Score: 0.9},
		{Type: model.TaxonomyPhone, Score: 0.3},
	}}

	c := New(NewRegistry(a, b)).Classify(model.FieldContext{ID: "f1"})
	assert.Equal(t, model.TaxonomyEmail, c.Type)
	assert.InDelta(t, 0.9, c.Score, 1e-9)
	require.Len(t, c.Candidates, 2)
	assert.Equal(t, model.TaxonomyPhone, c.Candidates[1].Type)
}

func TestMaxMerge_PriorityBreaksTie(t *testing.T) {
	t.Parallel()

	low := &stubParser{name: "low", priority: 10, cands: []model.CandidateType{
		{Type: model.TaxonomyCity, Score: 0.8},
	}}
	high := &stubParser{name: "high", priority: 90, cands: []model.CandidateType{
		{Type: model.TaxonomyState, Score: 0.8},
	}}

	c := New(NewRegistry(low, high)).Classify(model.FieldContext{ID: "f1"})
	assert.Equal(t, model.TaxonomyState, c.Type)
}

func TestMaxSumMerge_AgreementBonus(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(
		&stubParser{name: "a", priority: 3, cands: []model.CandidateType{{Type: model.TaxonomyEmail, Score: 0.7}}},
		&stubParser{name: "b", priority: 2, cands: []model.CandidateType{{Type: model.TaxonomyEmail, Score: 0.6}}},
		&stubParser{name: "c", priority: 1, cands: []model.CandidateType{{Type: model.TaxonomyEmail, Score: 0.5}}},
	)

	c := New(reg, WithMergeStrategy(MaxSumMerge{})).Classify(model.FieldContext{ID: "f1"})
	assert.InDelta(t, 0.8, c.Score, 1e-9)

	capped := NewRegistry(
		&stubParser{name: "a", priority: 2, cands: []model.CandidateType{{Type: model.TaxonomyEmail, Score: 0.98}}},
		&stubParser{name: "b", priority: 1, cands: []model.CandidateType{{Type: model.TaxonomyEmail, Score: 0.9}}},
	)
	c = New(capped, WithMergeStrategy(MaxSumMerge{})).Classify(model.FieldContext{ID: "f1"})
	assert.InDelta(t, 1.0, c.Score, 1e-9)
}

func TestClassify_BelowThresholdIsUnknown(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(&stubParser{name: "weak", priority: 1, cands: []model.CandidateType{
		{Type: model.TaxonomyCity, Score: 0.4},
	}})

	c := New(reg).Classify(model.FieldContext{ID: "f1"})
	assert.Equal(t, model.TaxonomyUnknown, c.Type)
	assert.Zero(t, c.Score)
	assert.False(t, c.Known())
	assert.Len(t, c.Candidates, 1)
}

func TestClassify_PanickingParserIsSkipped(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(
		&stubParser{name: "bad", priority: 99, panics: true},
		&stubParser{name: "good", priority: 1, cands: []model.CandidateType{{Type: model.TaxonomyEmail, Score: 0.9}}},
	)

	var c model.Classification
	assert.NotPanics(t, func() { c = New(reg).Classify(model.FieldContext{ID: "f1"}) })
	assert.Equal(t, model.TaxonomyEmail, c.Type)
}

func TestClassify_NoParsersIsUnknown(t *testing.T) {
	t.Parallel()

	c := New(NewRegistry()).Classify(model.FieldContext{ID: "f1"})
	assert.Equal(t, model.TaxonomyUnknown, c.Type)
	assert.Equal(t, "f1", c.FieldID)
}

func TestDefaultPipeline_EmailAddressOffline(t *testing.T) {
	t.Parallel()

	c := newDefaultPipeline(t).Classify(model.FieldContext{ID: "email", LabelText: "Email Address"})
	assert.Equal(t, model.TaxonomyEmail, c.Type)
	assert.Greater(t, c.Score, DefaultThreshold)
}

func TestDefaultPipeline_Labels(t *testing.T) {
	t.Parallel()

	p := newDefaultPipeline(t)
	tests := []struct {
		name  string
		field model.FieldContext
		want  model.Taxonomy
	}{
		{"first name", model.FieldContext{LabelText: "First Name *"}, model.TaxonomyFirstName},
		{"last name", model.FieldContext{LabelText: "Last name"}, model.TaxonomyLastName},
		{"full name", model.FieldContext{LabelText: "Full legal name"}, model.TaxonomyFullName},
		{"company", model.FieldContext{LabelText: "Company Name"}, model.TaxonomyCompanyName},
		{"linkedin", model.FieldContext{LabelText: "LinkedIn Profile URL"}, model.TaxonomyLinkedIn},
		{"gender label", model.FieldContext{LabelText: "Gender"}, model.TaxonomyEEOGender},
		{"diacritics", model.FieldContext{LabelText: "Prénom"}, model.TaxonomyFirstName},
		{"unmatched", model.FieldContext{LabelText: "What is your favorite color?"}, model.TaxonomyUnknown},
		{"empty", model.FieldContext{}, model.TaxonomyUnknown},
		{
			"education context",
			model.FieldContext{LabelText: "Start Date", SectionTitle: "Education"},
			model.TaxonomyEduStartDate,
		},
		{
			"experience context",
			model.FieldContext{LabelText: "Name", SectionTitle: "Work Experience"},
			model.TaxonomyCompanyName,
		},
		{
			"autocomplete",
			model.FieldContext{Attributes: map[string]string{"autocomplete": "section-a shipping given-name"}},
			model.TaxonomyFirstName,
		},
		{
			"input type",
			model.FieldContext{Attributes: map[string]string{"type": "email"}},
			model.TaxonomyEmail,
		},
		{
			"camel case attribute",
			model.FieldContext{Attributes: map[string]string{"name": "lastName"}},
			model.TaxonomyLastName,
		},
		{
			"choice set",
			model.FieldContext{Options: []string{"Male", "Female", "Decline to self-identify"}},
			model.TaxonomyEEOGender,
		},
		{
			"value shape",
			model.FieldContext{CurrentValue: "https://www.linkedin.com/in/jane"},
			model.TaxonomyLinkedIn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.Classify(tt.field).Type)
		})
	}
}

func TestDefaultPipeline_InputTypeOutranksLabel(t *testing.T) {
	t.Parallel()

	c := newDefaultPipeline(t).Classify(model.FieldContext{
		LabelText:  "Email",
		Attributes: map[string]string{"type": "email"},
	})
	assert.Equal(t, model.TaxonomyEmail, c.Type)
	assert.InDelta(t, 0.9, c.Score, 1e-9)
}

func TestWithParsers_RemoteVerdict(t *testing.T) {
	t.Parallel()

	base := newDefaultPipeline(t)
	field := model.FieldContext{ID: "q7", LabelText: "Tell us your pronouns"}
	require.Equal(t, model.TaxonomyUnknown, base.Classify(field).Type)

	remote := NewRemoteParser(map[string]RemoteResult{
		"q7": {Type: model.TaxonomyPreferredName, Confidence: 0.7},
	})
	withRemote := base.WithParsers(remote)

	c := withRemote.Classify(field)
	assert.Equal(t, model.TaxonomyPreferredName, c.Type)
	assert.InDelta(t, 0.7, c.Score, 1e-9)

	// The base pipeline is untouched.
	assert.Equal(t, model.TaxonomyUnknown, base.Classify(field).Type)
}

func TestRemoteParser_IgnoresUnknown(t *testing.T) {
	t.Parallel()

	p := NewRemoteParser(map[string]RemoteResult{"a": {Type: model.TaxonomyUnknown, Confidence: 0}})
	assert.False(t, p.CanParse(model.FieldContext{ID: "a"}))
	assert.False(t, p.CanParse(model.FieldContext{ID: "b"}))
}

func TestRegistry_OrderedByPriority(t *testing.T) {
	t.Parallel()

	r := NewRegistry(
		&stubParser{name: "mid", priority: 50},
		&stubParser{name: "low", priority: 1},
		&stubParser{name: "high", priority: 99},
	)
	ps := r.Parsers()
	require.Len(t, ps, 3)
	assert.Equal(t, "high", ps[0].Name())
	assert.Equal(t, "mid", ps[1].Name())
	assert.Equal(t, "low", ps[2].Name())
}

func TestParseMergeStrategy(t *testing.T) {
	t.Parallel()

	m, err := ParseMergeStrategy("")
	require.NoError(t, err)
	assert.Equal(t, MergeMax, m.Name())

	m, err = ParseMergeStrategy(MergeMaxSum)
	require.NoError(t, err)
	assert.Equal(t, MergeMaxSum, m.Name())

	_, err = ParseMergeStrategy("average")
	assert.Error(t, err)
}

func TestParseRules_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := ParseRules([]byte("classify:\n  keywords:\n    - type: NOT_A_TYPE\n      keywords: [x]\n"))
	assert.Error(t, err)

	_, err = ParseRules([]byte("classify:\n  keywords:\n    - type: EMAIL\n      patterns: ['(']\n"))
	assert.Error(t, err)
}

func TestLoadRules_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadRules("/nonexistent/rules.yaml")
	assert.Error(t, err)
}
