package model

import (
	"time"

	"github.com/sells-group/formpilot/internal/textnorm"
)

// AnswerValue is one stored, reusable answer for a taxonomy type.
type AnswerValue struct {
	ID              string      `json:"id"`
	Type            Taxonomy    `json:"type"`
	Value           string      `json:"value"`
	Display         string      `json:"display,omitempty"`
	Aliases         []string    `json:"aliases,omitempty"`
	Sensitivity     Sensitivity `json:"sensitivity"`
	AutofillAllowed bool        `json:"autofill_allowed"`
	// Priority orders entries of experience-group types; 0 is the most recent.
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAnswerValue builds an answer with sensitivity derived from its type.
// Sensitive answers always start with autofill disallowed.
func NewAnswerValue(id string, t Taxonomy, value string, now time.Time) AnswerValue {
	a := AnswerValue{
		ID:        id,
		Type:      t,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.ApplySensitivity()
	a.AutofillAllowed = !a.IsSensitive()
	return a
}

// ApplySensitivity re-derives Sensitivity from Type.
func (a *AnswerValue) ApplySensitivity() {
	a.Sensitivity = a.Type.Sensitivity()
}

// IsSensitive reports whether the answer's type is in the sensitive subset.
func (a AnswerValue) IsSensitive() bool {
	return a.Type.IsSensitive()
}

// Label returns Display when set, otherwise Value.
func (a AnswerValue) Label() string {
	if a.Display != "" {
		return a.Display
	}
	return a.Value
}

// Matches reports whether v equals the value, display text or any alias
// after folding.
func (a AnswerValue) Matches(v string) bool {
	f := textnorm.Fold(v)
	if f == "" {
		return false
	}
	if textnorm.Fold(a.Value) == f || (a.Display != "" && textnorm.Fold(a.Display) == f) {
		return true
	}
	for _, alias := range a.Aliases {
		if textnorm.Fold(alias) == f {
			return true
		}
	}
	return false
}

// AddAlias records an alternate phrasing. Returns false when v already
// matches the answer.
func (a *AnswerValue) AddAlias(v string) bool {
	if a.Matches(v) {
		return false
	}
	a.Aliases = append(a.Aliases, v)
	return true
}

// QuestionKey fingerprints a kind of question independent of any page.
type QuestionKey struct {
	ID            string    `json:"id"`
	Type          Taxonomy  `json:"type"`
	Phrases       []string  `json:"phrases"`
	SectionHints  []string  `json:"section_hints,omitempty"`
	ChoiceSetHash string    `json:"choice_set_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AddPhrase appends a new wording. Returns false for an existing one.
func (q *QuestionKey) AddPhrase(p string) bool {
	return addFolded(&q.Phrases, p)
}

// AddSectionHint appends a new section title. Returns false for an existing one.
func (q *QuestionKey) AddSectionHint(s string) bool {
	return addFolded(&q.SectionHints, s)
}

// BestPhraseSimilarity returns the highest similarity between label and any
// known phrase.
func (q QuestionKey) BestPhraseSimilarity(label string) float64 {
	best := 0.0
	for _, p := range q.Phrases {
		if s := textnorm.Similarity(p, label); s > best {
			best = s
		}
	}
	return best
}

// HasSectionHint reports whether section matches any known hint.
func (q QuestionKey) HasSectionHint(section string) bool {
	f := textnorm.Fold(section)
	for _, h := range q.SectionHints {
		if textnorm.Fold(h) == f {
			return true
		}
	}
	return false
}

func addFolded(list *[]string, v string) bool {
	f := textnorm.Fold(v)
	if f == "" {
		return false
	}
	for _, existing := range *list {
		if textnorm.Fold(existing) == f {
			return false
		}
	}
	*list = append(*list, v)
	return true
}

// Observation links a QuestionKey to the AnswerValue that satisfied it on
// a site. Observations are never mutated after creation.
type Observation struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	SiteKey       string          `json:"site_key"`
	URL           string          `json:"url"`
	QuestionKeyID string          `json:"question_key_id"`
	AnswerID      string          `json:"answer_id"`
	FieldLocator  *Locator        `json:"field_locator,omitempty"`
	Widget        WidgetSignature `json:"widget_signature"`
	Confidence    float64         `json:"confidence"`
}

// PendingStatus is the lifecycle state of a staged observation.
type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusCommitted PendingStatus = "committed"
	PendingStatusDiscarded PendingStatus = "discarded"
)

// PendingObservation is a learning candidate awaiting user commit or discard.
type PendingObservation struct {
	ID            string        `json:"id"`
	SiteKey       string        `json:"site_key"`
	FormID        string        `json:"form_id"`
	URL           string        `json:"url"`
	QuestionKeyID string        `json:"question_key_id"`
	QuestionKey   QuestionKey   `json:"question_key"`
	Type          Taxonomy      `json:"type"`
	RawValue      string        `json:"raw_value"`
	Value         string        `json:"value"`
	Confidence    float64       `json:"confidence"`
	Reasons       []string      `json:"reasons,omitempty"`
	Field         FieldContext  `json:"field"`
	Status        PendingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DedupKey identifies the staged slot a pending observation occupies.
func (p PendingObservation) DedupKey() string {
	return p.SiteKey + "\x1f" + p.FormID + "\x1f" + p.QuestionKeyID
}

// ActivityEntry is one line of the user-visible activity log.
type ActivityEntry struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	SiteKey string    `json:"site_key,omitempty"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
}

// Activity log actions.
const (
	ActivityFill    = "fill"
	ActivityUndo    = "undo"
	ActivityCommit  = "commit"
	ActivityDiscard = "discard"
	ActivityConsent = "consent"
	ActivityAnswer  = "answer"
)
