// Package knowledge is the domain-facing facade over the persistent store.
// It owns the answer invariants (sensitivity, alias merge, cascade delete)
// and degrades read failures to empty values so planning and recording
// treat a broken store like an empty one.
package knowledge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/store"
)

// Store wraps a store.Store with domain rules.
type Store struct {
	st  store.Store
	now func() time.Time
}

// New wraps st.
func New(st store.Store) *Store {
	return &Store{st: st, now: func() time.Time { return time.Now().UTC() }}
}

// Backend returns the wrapped persistence layer.
func (k *Store) Backend() store.Store { return k.st }

// --- Answers ---

// Answers returns every stored answer, or nil when the store cannot be read.
func (k *Store) Answers(ctx context.Context) []model.AnswerValue {
	list, err := k.st.ListAnswers(ctx)
	if err != nil {
		degraded("list answers", err)
		return nil
	}
	return list
}

// AnswersByType returns answers of t ordered by priority, most recent first.
func (k *Store) AnswersByType(ctx context.Context, t model.Taxonomy) []model.AnswerValue {
	list, err := k.st.ListAnswersByType(ctx, t)
	if err != nil {
		degraded("list answers by type", err, zap.String("type", string(t)))
		return nil
	}
	return list
}

// Answer returns one answer or nil when missing or unreadable.
func (k *Store) Answer(ctx context.Context, id string) *model.AnswerValue {
	a, err := k.st.GetAnswer(ctx, id)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			degraded("get answer", err, zap.String("answer_id", id))
		}
		return nil
	}
	return a
}

// AnswerInput carries user-entered fields for AddAnswer.
type AnswerInput struct {
	Type     model.Taxonomy
	Value    string
	Display  string
	Aliases  []string
	Priority int
}

// AddAnswer stores a new answer. Sensitive answers are always created with
// autofill disallowed; SetAutofillAllowed is the only way to change that.
func (k *Store) AddAnswer(ctx context.Context, in AnswerInput) (model.AnswerValue, error) {
	if in.Type == "" || in.Type == model.TaxonomyUnknown {
		return model.AnswerValue{}, eris.New("knowledge: answer type is required")
	}
	a := model.NewAnswerValue(uuid.NewString(), in.Type, in.Value, k.now())
	a.Display = in.Display
	a.Priority = in.Priority
	for _, alias := range in.Aliases {
		a.AddAlias(alias)
	}
	if err := k.st.PutAnswer(ctx, a); err != nil {
		return model.AnswerValue{}, eris.Wrap(err, "knowledge: add answer")
	}
	zap.L().Debug("knowledge: answer added",
		zap.String("answer_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.Bool("sensitive", a.IsSensitive()),
	)
	return a, nil
}

// AnswerPatch is a partial edit; nil fields are left unchanged.
type AnswerPatch struct {
	Value    *string
	Display  *string
	Aliases  []string
	Priority *int
}

// UpdateAnswer applies an explicit edit. Type and AutofillAllowed never
// change through this path.
func (k *Store) UpdateAnswer(ctx context.Context, id string, p AnswerPatch) (model.AnswerValue, error) {
	a, err := k.st.GetAnswer(ctx, id)
	if err != nil {
		return model.AnswerValue{}, eris.Wrapf(err, "knowledge: update answer %s", id)
	}
	if p.Value != nil && *p.Value != a.Value {
		// Keep the old wording matchable.
		a.AddAlias(a.Value)
		a.Value = *p.Value
	}
	if p.Display != nil {
		a.Display = *p.Display
	}
	for _, alias := range p.Aliases {
		a.AddAlias(alias)
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	a.ApplySensitivity()
	a.UpdatedAt = k.now()
	if err := k.st.PutAnswer(ctx, *a); err != nil {
		return model.AnswerValue{}, eris.Wrapf(err, "knowledge: update answer %s", id)
	}
	return *a, nil
}

// MergeAnswer records v as an alias of the answer and bumps UpdatedAt.
func (k *Store) MergeAnswer(ctx context.Context, a model.AnswerValue, v string) (model.AnswerValue, error) {
	a.AddAlias(v)
	a.UpdatedAt = k.now()
	if err := k.st.PutAnswer(ctx, a); err != nil {
		return model.AnswerValue{}, eris.Wrapf(err, "knowledge: merge answer %s", a.ID)
	}
	return a, nil
}

// SetAutofillAllowed is the explicit user action that toggles autofill for
// an answer.
func (k *Store) SetAutofillAllowed(ctx context.Context, id string, allowed bool) (model.AnswerValue, error) {
	a, err := k.st.GetAnswer(ctx, id)
	if err != nil {
		return model.AnswerValue{}, eris.Wrapf(err, "knowledge: set autofill %s", id)
	}
	a.AutofillAllowed = allowed
	a.UpdatedAt = k.now()
	if err := k.st.PutAnswer(ctx, *a); err != nil {
		return model.AnswerValue{}, eris.Wrapf(err, "knowledge: set autofill %s", id)
	}
	k.Log(ctx, "", model.ActivityAnswer, "autofill "+boolWord(allowed)+" for "+string(a.Type))
	return *a, nil
}

// DeleteAnswer removes an answer and every observation pointing at it.
func (k *Store) DeleteAnswer(ctx context.Context, id string) error {
	if err := k.st.DeleteAnswer(ctx, id); err != nil {
		return eris.Wrapf(err, "knowledge: delete answer %s", id)
	}
	k.Log(ctx, "", model.ActivityAnswer, "deleted answer "+id)
	return nil
}

// --- Question keys & observations ---

// QuestionKeys returns every stored question key.
func (k *Store) QuestionKeys(ctx context.Context) []model.QuestionKey {
	list, err := k.st.ListQuestionKeys(ctx)
	if err != nil {
		degraded("list question keys", err)
		return nil
	}
	return list
}

// QuestionKey returns one key or nil.
func (k *Store) QuestionKey(ctx context.Context, id string) *model.QuestionKey {
	q, err := k.st.GetQuestionKey(ctx, id)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			degraded("get question key", err, zap.String("question_key_id", id))
		}
		return nil
	}
	return q
}

// PutQuestionKey upserts q.
func (k *Store) PutQuestionKey(ctx context.Context, q model.QuestionKey) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = k.now()
	}
	q.UpdatedAt = k.now()
	return eris.Wrapf(k.st.PutQuestionKey(ctx, q), "knowledge: put question key %s", q.ID)
}

// Observations returns a site's observations, newest first.
func (k *Store) Observations(ctx context.Context, siteKey string) []model.Observation {
	list, err := k.st.ListObservations(ctx, siteKey)
	if err != nil {
		degraded("list observations", err, zap.String("site_key", siteKey))
		return nil
	}
	return list
}

// FindObservation returns the observation linking the triple or nil.
func (k *Store) FindObservation(ctx context.Context, siteKey, questionKeyID, answerID string) *model.Observation {
	o, err := k.st.FindObservation(ctx, siteKey, questionKeyID, answerID)
	if err != nil {
		degraded("find observation", err, zap.String("site_key", siteKey))
		return nil
	}
	return o
}

// RecordObservation returns the existing observation for the triple or
// writes a new one.
func (k *Store) RecordObservation(ctx context.Context, o model.Observation) (model.Observation, bool, error) {
	existing, err := k.st.FindObservation(ctx, o.SiteKey, o.QuestionKeyID, o.AnswerID)
	if err != nil {
		return model.Observation{}, false, eris.Wrap(err, "knowledge: find observation")
	}
	if existing != nil {
		return *existing, false, nil
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = k.now()
	}
	if err := k.st.InsertObservation(ctx, o); err != nil {
		return model.Observation{}, false, eris.Wrap(err, "knowledge: insert observation")
	}
	return o, true, nil
}

// --- Pending observations ---

// Pending lists staged observations with status; "" lists all.
func (k *Store) Pending(ctx context.Context, status model.PendingStatus) []model.PendingObservation {
	list, err := k.st.ListPending(ctx, status)
	if err != nil {
		degraded("list pending", err)
		return nil
	}
	return list
}

// GetPending returns one staged record. Missing records are an error since
// commit and discard always name an existing record.
func (k *Store) GetPending(ctx context.Context, id string) (*model.PendingObservation, error) {
	p, err := k.st.GetPending(ctx, id)
	return p, eris.Wrapf(err, "knowledge: get pending %s", id)
}

// FindPending returns the open staged record occupying dedupKey.
func (k *Store) FindPending(ctx context.Context, dedupKey string) (*model.PendingObservation, error) {
	p, err := k.st.FindPendingByDedupKey(ctx, dedupKey)
	return p, eris.Wrap(err, "knowledge: find pending")
}

// PutPending upserts p.
func (k *Store) PutPending(ctx context.Context, p model.PendingObservation) error {
	return eris.Wrapf(k.st.PutPending(ctx, p), "knowledge: put pending %s", p.ID)
}

// DeletePending removes p.
func (k *Store) DeletePending(ctx context.Context, id string) error {
	return eris.Wrapf(k.st.DeletePending(ctx, id), "knowledge: delete pending %s", id)
}

// --- Site settings ---

// SiteSettings returns the stored policy for siteKey or the secure default.
func (k *Store) SiteSettings(ctx context.Context, siteKey string) model.SiteSettings {
	ss, err := k.st.GetSiteSettings(ctx, siteKey)
	if err != nil {
		degraded("get site settings", err, zap.String("site_key", siteKey))
	}
	if ss == nil {
		return model.DefaultSiteSettings(siteKey, k.now())
	}
	return *ss
}

// SiteUpdate is a partial site policy edit.
type SiteUpdate struct {
	RecordEnabled   *bool
	AutofillEnabled *bool
}

// UpdateSiteSettings reads, patches and writes one site entry.
func (k *Store) UpdateSiteSettings(ctx context.Context, siteKey string, u SiteUpdate) (model.SiteSettings, error) {
	ss := k.SiteSettings(ctx, siteKey)
	if u.RecordEnabled != nil {
		ss.RecordEnabled = *u.RecordEnabled
	}
	if u.AutofillEnabled != nil {
		ss.AutofillEnabled = *u.AutofillEnabled
	}
	ss.UpdatedAt = k.now()
	if err := k.st.PutSiteSettings(ctx, ss); err != nil {
		return model.SiteSettings{}, eris.Wrapf(err, "knowledge: put site settings %s", siteKey)
	}
	return ss, nil
}

// --- Activity ---

// Log appends an activity entry. Failures are logged and swallowed.
func (k *Store) Log(ctx context.Context, siteKey, action, detail string) {
	e := model.ActivityEntry{
		ID:      uuid.NewString(),
		At:      k.now(),
		SiteKey: siteKey,
		Action:  action,
		Detail:  detail,
	}
	if err := k.st.AppendActivity(ctx, e); err != nil {
		zap.L().Warn("knowledge: append activity failed", zap.String("action", action), zap.Error(err))
	}
}

// Activity returns the newest entries, at most limit.
func (k *Store) Activity(ctx context.Context, limit int) []model.ActivityEntry {
	list, err := k.st.ListActivity(ctx, limit)
	if err != nil {
		degraded("list activity", err)
		return nil
	}
	return list
}

func degraded(op string, err error, fields ...zap.Field) {
	zap.L().Warn("knowledge: read degraded to empty",
		append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...)
}

func boolWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
