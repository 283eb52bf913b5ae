// Package learn is the observation loop: manual edits are classified and
// staged as pending observations, and only an explicit commit turns them
// into stored answers.
package learn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/classify"
	"github.com/sells-group/formpilot/internal/knowledge"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/normalize"
	"github.com/sells-group/formpilot/internal/textnorm"
)

// DefaultKeyMatch is the phrase similarity at which an edit reuses an
// existing question key.
const DefaultKeyMatch = 0.85

var (
	// ErrDisabled means consent or the site policy forbids recording.
	ErrDisabled = eris.New("learn: recording disabled")
	// ErrNotPending means the record was already committed or discarded.
	ErrNotPending = eris.New("learn: observation is not pending")
	// ErrUnknownType means a commit could not resolve a taxonomy.
	ErrUnknownType = eris.New("learn: answer type unknown")
)

// keyNamespace seeds deterministic ids for question keys first seen in an
// edit, so re-editing the same field stages into the same slot.
var keyNamespace = uuid.MustParse("6f1c2a8e-4b8d-4f4e-9d52-5d3e1f0a7c11")

// Consent reports whether observations may be written at all.
type Consent interface {
	DataCollection(ctx context.Context) bool
}

// Normalizer standardizes raw values before they are staged.
type Normalizer interface {
	Normalize(ctx context.Context, kind normalize.Kind, raw string) normalize.Result
}

// Edit is one manual change the user made to a field.
type Edit struct {
	URL    string             `json:"url"`
	FormID string             `json:"form_id"`
	Field  model.FieldContext `json:"field"`
	Value  string             `json:"value"`
}

// Recorder stages and commits observations.
type Recorder struct {
	kb       *knowledge.Store
	pipeline *classify.Pipeline
	consent  Consent
	norm     Normalizer
	keyMatch float64
	now      func() time.Time
}

// New returns a recorder. norm may be nil, in which case values are staged
// with local rules only.
func New(kb *knowledge.Store, pipeline *classify.Pipeline, consent Consent, norm Normalizer) *Recorder {
	return &Recorder{
		kb:       kb,
		pipeline: pipeline,
		consent:  consent,
		norm:     norm,
		keyMatch: DefaultKeyMatch,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Observe stages a manual edit. Editing the same field again before it is
// confirmed updates the staged record. Returns nil for edits that are not
// worth recording.
func (r *Recorder) Observe(ctx context.Context, e Edit) (*model.PendingObservation, error) {
	if !r.consent.DataCollection(ctx) {
		return nil, ErrDisabled
	}
	siteKey := model.SiteKeyFromURL(e.URL)
	if !r.kb.SiteSettings(ctx, siteKey).RecordEnabled {
		return nil, ErrDisabled
	}
	raw := strings.TrimSpace(e.Value)
	if raw == "" || !recordable(e.Field) {
		return nil, nil
	}

	f := e.Field
	f.CurrentValue = raw
	cls := r.pipeline.Classify(f)
	qk := r.questionKey(ctx, f, cls.Type)
	value, conf, reasons := r.normalizeValue(ctx, cls, raw)

	now := r.now()
	p := model.PendingObservation{
		SiteKey:       siteKey,
		FormID:        e.FormID,
		URL:           e.URL,
		QuestionKeyID: qk.ID,
		QuestionKey:   qk,
		Type:          cls.Type,
		RawValue:      raw,
		Value:         value,
		Confidence:    conf,
		Reasons:       reasons,
		Field:         f,
		Status:        model.PendingStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	existing, err := r.kb.FindPending(ctx, p.DedupKey())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = uuid.NewString()
	}
	if err := r.kb.PutPending(ctx, p); err != nil {
		return nil, err
	}

	zap.L().Debug("learn: staged observation",
		zap.String("pending_id", p.ID),
		zap.String("site", siteKey),
		zap.String("type", string(p.Type)),
		zap.Bool("updated", existing != nil),
	)
	return &p, nil
}

// Pending lists staged observations awaiting a decision.
func (r *Recorder) Pending(ctx context.Context) []model.PendingObservation {
	return r.kb.Pending(ctx, model.PendingStatusPending)
}

// Commit confirms a staged observation. An existing answer of the same
// type that matches the value absorbs it as an alias; otherwise a new
// answer is created. typeOverride replaces the staged type when set.
func (r *Recorder) Commit(ctx context.Context, id string, typeOverride model.Taxonomy) (model.AnswerValue, error) {
	if !r.consent.DataCollection(ctx) {
		return model.AnswerValue{}, ErrDisabled
	}
	p, err := r.kb.GetPending(ctx, id)
	if err != nil {
		return model.AnswerValue{}, err
	}
	if p.Status != model.PendingStatusPending {
		return model.AnswerValue{}, eris.Wrapf(ErrNotPending, "learn: commit %s", id)
	}
	t := p.Type
	if typeOverride != "" {
		t = typeOverride
	}
	if t == "" || t == model.TaxonomyUnknown {
		return model.AnswerValue{}, eris.Wrapf(ErrUnknownType, "learn: commit %s", id)
	}

	answer, merged, err := r.upsertAnswer(ctx, t, p)
	if err != nil {
		return model.AnswerValue{}, err
	}

	qk := p.QuestionKey
	if stored := r.kb.QuestionKey(ctx, p.QuestionKeyID); stored != nil {
		qk = *stored
		qk.AddPhrase(p.Field.LabelText)
		qk.AddSectionHint(p.Field.SectionTitle)
	}
	if qk.Type == "" || qk.Type == model.TaxonomyUnknown {
		qk.Type = t
	}
	if err := r.kb.PutQuestionKey(ctx, qk); err != nil {
		return model.AnswerValue{}, err
	}

	loc := p.Field.Locator
	if _, _, err := r.kb.RecordObservation(ctx, model.Observation{
		SiteKey:       p.SiteKey,
		URL:           p.URL,
		QuestionKeyID: qk.ID,
		AnswerID:      answer.ID,
		FieldLocator:  &loc,
		Widget:        p.Field.Widget,
		Confidence:    p.Confidence,
	}); err != nil {
		return model.AnswerValue{}, err
	}

	p.Status = model.PendingStatusCommitted
	p.Type = t
	p.UpdatedAt = r.now()
	if err := r.kb.PutPending(ctx, *p); err != nil {
		return model.AnswerValue{}, err
	}

	verb := "created"
	if merged {
		verb = "merged into"
	}
	r.kb.Log(ctx, p.SiteKey, model.ActivityCommit, fmt.Sprintf("%s %s answer %s", verb, t, answer.ID))
	zap.L().Info("learn: observation committed",
		zap.String("pending_id", p.ID),
		zap.String("answer_id", answer.ID),
		zap.String("type", string(t)),
		zap.Bool("merged", merged),
	)
	return answer, nil
}

// Discard drops a staged observation without touching any answer. Like
// every other write of the recorder it requires data-collection consent.
func (r *Recorder) Discard(ctx context.Context, id string) error {
	if !r.consent.DataCollection(ctx) {
		return ErrDisabled
	}
	p, err := r.kb.GetPending(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != model.PendingStatusPending {
		return eris.Wrapf(ErrNotPending, "learn: discard %s", id)
	}
	if err := r.kb.DeletePending(ctx, id); err != nil {
		return err
	}
	r.kb.Log(ctx, p.SiteKey, model.ActivityDiscard, fmt.Sprintf("discarded %s observation", p.Type))
	return nil
}

func (r *Recorder) upsertAnswer(ctx context.Context, t model.Taxonomy, p *model.PendingObservation) (model.AnswerValue, bool, error) {
	existing := r.kb.AnswersByType(ctx, t)
	for _, a := range existing {
		if a.Matches(p.Value) || a.Matches(p.RawValue) {
			merged, err := r.kb.MergeAnswer(ctx, a, p.RawValue)
			return merged, true, err
		}
	}
	in := knowledge.AnswerInput{Type: t, Value: p.Value}
	if p.RawValue != p.Value {
		in.Aliases = []string{p.RawValue}
	}
	if t.IsExperienceGroup() {
		in.Priority = len(existing)
	}
	a, err := r.kb.AddAnswer(ctx, in)
	return a, false, err
}

// questionKey finds a stored key whose phrases match the field, or builds
// a new one with an id derived from the field's wording.
func (r *Recorder) questionKey(ctx context.Context, f model.FieldContext, t model.Taxonomy) model.QuestionKey {
	var hash string
	if len(f.Options) > 0 {
		hash = textnorm.ChoiceSetHash(f.Options)
	}

	var best *model.QuestionKey
	bestSim := 0.0
	keys := r.kb.QuestionKeys(ctx)
	for i := range keys {
		k := &keys[i]
		if t != model.TaxonomyUnknown && k.Type != "" && k.Type != model.TaxonomyUnknown && k.Type != t {
			continue
		}
		if k.ChoiceSetHash != "" && hash != "" && k.ChoiceSetHash != hash {
			continue
		}
		sim := k.BestPhraseSimilarity(f.LabelText)
		if len(k.SectionHints) > 0 && f.SectionTitle != "" && !k.HasSectionHint(f.SectionTitle) {
			sim -= 0.1
		}
		if sim >= r.keyMatch && sim > bestSim {
			best, bestSim = k, sim
		}
	}
	if best != nil {
		return *best
	}

	seed := textnorm.Fold(f.LabelText) + "\x1f" + textnorm.Fold(f.SectionTitle) + "\x1f" + hash
	qk := model.QuestionKey{
		ID:            uuid.NewSHA1(keyNamespace, []byte(seed)).String(),
		Type:          t,
		ChoiceSetHash: hash,
	}
	qk.AddPhrase(f.LabelText)
	qk.AddSectionHint(f.SectionTitle)
	return qk
}

func (r *Recorder) normalizeValue(ctx context.Context, cls model.Classification, raw string) (string, float64, []string) {
	kind := normalize.KindFor(cls.Type)
	var res normalize.Result
	if r.norm != nil {
		res = r.norm.Normalize(ctx, kind, raw)
	} else {
		res = normalize.Local(kind, raw)
	}
	reasons := append([]string(nil), cls.Reasons...)
	reasons = append(reasons, res.Reasons...)
	value := res.Value
	if !res.OK() {
		value = strings.Join(strings.Fields(raw), " ")
	}
	return value, cls.Score, reasons
}

// recordable excludes controls whose contents must never be learned.
func recordable(f model.FieldContext) bool {
	switch f.InputType() {
	case "password", "hidden", "file":
		return false
	}
	switch f.Widget.Kind {
	case model.WidgetFile, model.WidgetUnsupported:
		return false
	}
	return true
}
