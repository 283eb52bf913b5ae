package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTaxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Taxonomy
		ok   bool
	}{
		{"EMAIL", TaxonomyEmail, true},
		{"first_name", TaxonomyFirstName, true},
		{"eeo-gender", TaxonomyEEOGender, true},
		{" Grad Date ", TaxonomyGradDate, true},
		{"unknown", TaxonomyUnknown, true},
		{"favorite_color", TaxonomyUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseTaxonomy(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTaxonomy_EveryMemberHasGroup(t *testing.T) {
	t.Parallel()

	for _, tx := range AllTaxonomies() {
		assert.NotEqual(t, GroupUnknown, tx.Group(), "taxonomy %s has no group", tx)
	}
	assert.Equal(t, GroupUnknown, TaxonomyUnknown.Group())
}

func TestTaxonomy_Sensitivity(t *testing.T) {
	t.Parallel()

	sensitive := []Taxonomy{
		TaxonomySalaryExpectation, TaxonomyGovID, TaxonomyEEOGender, TaxonomyEEORace,
		TaxonomyEEOVeteran, TaxonomyEEODisability, TaxonomyEEOHispanic, TaxonomyResumeText,
	}
	for _, tx := range sensitive {
		assert.True(t, tx.IsSensitive(), tx)
		assert.Equal(t, SensitivitySensitive, tx.Sensitivity())
	}
	assert.False(t, TaxonomyEmail.IsSensitive())
	assert.Equal(t, SensitivityNormal, TaxonomyFirstName.Sensitivity())
}

func TestTaxonomy_IsExperienceGroup(t *testing.T) {
	t.Parallel()

	assert.True(t, TaxonomyCompanyName.IsExperienceGroup())
	assert.True(t, TaxonomySchool.IsExperienceGroup())
	assert.False(t, TaxonomyEmail.IsExperienceGroup())
}

func TestNewAnswerValue_SensitiveDefaultsToNoAutofill(t *testing.T) {
	t.Parallel()

	now := time.Now()
	a := NewAnswerValue("a1", TaxonomyGovID, "123-45-6789", now)
	assert.Equal(t, SensitivitySensitive, a.Sensitivity)
	assert.False(t, a.AutofillAllowed)

	b := NewAnswerValue("b1", TaxonomyEmail, "jane@example.com", now)
	assert.Equal(t, SensitivityNormal, b.Sensitivity)
	assert.True(t, b.AutofillAllowed)
}

func TestAnswerValue_AliasMerge(t *testing.T) {
	t.Parallel()

	a := NewAnswerValue("a1", TaxonomySchool, "Massachusetts Institute of Technology", time.Now())
	assert.True(t, a.AddAlias("MIT"))
	assert.False(t, a.AddAlias("mit"))
	assert.False(t, a.AddAlias("massachusetts institute of technology"))
	assert.False(t, a.Matches("M.I.T"))
	assert.True(t, a.Matches("MIT"))
	assert.Len(t, a.Aliases, 1)
}

func TestQuestionKey_Phrases(t *testing.T) {
	t.Parallel()

	q := QuestionKey{ID: "q1", Type: TaxonomyFirstName}
	assert.True(t, q.AddPhrase("First Name"))
	assert.False(t, q.AddPhrase("first name*"))
	assert.True(t, q.AddPhrase("Given name"))
	assert.Equal(t, 1.0, q.BestPhraseSimilarity("FIRST NAME"))
	assert.True(t, q.AddSectionHint("Personal Information"))
	assert.True(t, q.HasSectionHint("personal information"))
}

func TestSiteKeyFromURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://boards.greenhouse.io", SiteKeyFromURL("https://Boards.Greenhouse.io/acme/jobs/123?gh_src=x"))
	assert.Equal(t, "http://localhost:8080", SiteKeyFromURL("http://localhost:8080/apply"))
	assert.Equal(t, "not a url", SiteKeyFromURL("Not A URL"))
}

func TestDefaultSiteSettings(t *testing.T) {
	t.Parallel()

	s := DefaultSiteSettings("https://jobs.example.com", time.Now())
	assert.True(t, s.RecordEnabled)
	assert.False(t, s.AutofillEnabled)
}

func TestLocatorKey(t *testing.T) {
	t.Parallel()

	l := Locator{
		Path:     []PathStep{{Kind: StepFrame, Selector: "iframe#apply"}, {Kind: StepShadow, Selector: "x-form"}},
		Selector: "input[name=email]",
	}
	assert.Equal(t, "frame:iframe#apply >> shadow:x-form >> input[name=email]", l.Key())
	assert.Equal(t, l.Key(), FieldContext{Locator: l}.Key())
	assert.Equal(t, "f1", FieldContext{ID: "f1", Locator: l}.Key())
}
