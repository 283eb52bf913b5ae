// Package planner joins classified fields with stored answers and decides,
// per field, whether to fill, suggest, hold as sensitive or skip.
package planner

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/classify"
	"github.com/sells-group/formpilot/internal/fill"
	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/textnorm"
)

// Decision is the per-field outcome of planning.
type Decision string

const (
	DecisionFill      Decision = "fill"
	DecisionSuggest   Decision = "suggest"
	DecisionSensitive Decision = "sensitive"
	DecisionSkip      Decision = "skip"
)

// Mode distinguishes automatic fills on page load from fills the user
// explicitly asked for.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Defaults.
const (
	DefaultMinConfidence    = 0.8
	DefaultObservationMatch = 0.9
)

// Knowledge is the read side of the knowledge store the planner needs.
type Knowledge interface {
	SiteSettings(ctx context.Context, siteKey string) model.SiteSettings
	Observations(ctx context.Context, siteKey string) []model.Observation
	QuestionKey(ctx context.Context, id string) *model.QuestionKey
	Answer(ctx context.Context, id string) *model.AnswerValue
	AnswersByType(ctx context.Context, t model.Taxonomy) []model.AnswerValue
}

// RemoteClassifier resolves fields the local parsers left unknown.
type RemoteClassifier interface {
	ClassifyBatch(ctx context.Context, fields []model.FieldContext) map[string]classify.RemoteResult
}

// FieldDecision explains what the planner chose for one field.
type FieldDecision struct {
	Field          model.FieldContext   `json:"field"`
	Decision       Decision             `json:"decision"`
	Classification model.Classification `json:"classification"`
	Plan           *model.FillPlan      `json:"plan,omitempty"`
	Candidates     []model.AnswerValue  `json:"candidates,omitempty"`
	Reason         string               `json:"reason,omitempty"`
}

// Result is the plan for one page, in document order.
type Result struct {
	SiteKey   string             `json:"site_key"`
	Site      model.SiteSettings `json:"site"`
	Decisions []FieldDecision    `json:"decisions"`
	Plans     []model.FillPlan   `json:"plans"`
}

// Count returns how many decisions equal d.
func (r Result) Count(d Decision) int {
	n := 0
	for _, fd := range r.Decisions {
		if fd.Decision == d {
			n++
		}
	}
	return n
}

// Options tunes a Planner.
type Options struct {
	MinConfidence    float64
	ObservationMatch float64
}

// Planner builds fill plans. It never writes to the store.
type Planner struct {
	kb       Knowledge
	pipeline *classify.Pipeline
	remote   RemoteClassifier
	opts     Options
}

// New returns a planner. remote may be nil.
func New(kb Knowledge, pipeline *classify.Pipeline, remote RemoteClassifier, opts Options) *Planner {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.ObservationMatch <= 0 {
		opts.ObservationMatch = DefaultObservationMatch
	}
	return &Planner{kb: kb, pipeline: pipeline, remote: remote, opts: opts}
}

type observed struct {
	obs model.Observation
	qk  model.QuestionKey
}

// Plan decides every field of a page.
func (p *Planner) Plan(ctx context.Context, siteKey string, fields []model.FieldContext, mode Mode) Result {
	ordered := make([]model.FieldContext, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DocumentIndex < ordered[j].DocumentIndex
	})

	res := Result{SiteKey: siteKey, Site: p.kb.SiteSettings(ctx, siteKey)}
	history := p.loadObservations(ctx, siteKey)

	decisions := make([]FieldDecision, len(ordered))
	fast := make([]*model.AnswerValue, len(ordered))
	var unknown []int
	for i, f := range ordered {
		decisions[i].Field = f
		if !fillable(f) {
			decisions[i].Decision = DecisionSkip
			decisions[i].Reason = "unsupported widget"
			continue
		}
		if a, qk, sim, ok := p.fastPath(ctx, f, history); ok {
			fast[i] = a
			decisions[i].Classification = model.Classification{
				FieldID: f.Key(),
				Type:    qk.Type,
				Score:   sim,
				Reasons: []string{"observed on site"},
			}
			continue
		}
		decisions[i].Classification = p.pipeline.Classify(f)
		if !decisions[i].Classification.Known() {
			unknown = append(unknown, i)
		}
	}

	p.resolveRemote(ctx, ordered, decisions, unknown)

	occurrence := make(map[model.Taxonomy]int)
	for i := range decisions {
		d := &decisions[i]
		if d.Decision == DecisionSkip {
			continue
		}
		if fast[i] != nil {
			p.decide(d, *fast[i], []model.AnswerValue{*fast[i]}, model.SourceObservation, res.Site, mode)
		} else {
			p.decideClassified(ctx, d, occurrence, res.Site, mode)
		}
		if d.Plan != nil {
			res.Plans = append(res.Plans, *d.Plan)
		}
		zap.L().Debug("planner: field decided",
			zap.String("field", d.Field.Key()),
			zap.String("type", string(d.Classification.Type)),
			zap.String("decision", string(d.Decision)),
			zap.String("reason", d.Reason),
		)
	}
	res.Decisions = decisions

	zap.L().Info("planner: page planned",
		zap.String("site", siteKey),
		zap.String("mode", string(mode)),
		zap.Int("fields", len(ordered)),
		zap.Int("plans", len(res.Plans)),
		zap.Int("suggest", res.Count(DecisionSuggest)),
		zap.Int("sensitive", res.Count(DecisionSensitive)),
	)
	return res
}

func (p *Planner) resolveRemote(ctx context.Context, fields []model.FieldContext, decisions []FieldDecision, unknown []int) {
	if p.remote == nil || len(unknown) == 0 {
		return
	}
	batch := make([]model.FieldContext, len(unknown))
	for j, i := range unknown {
		batch[j] = fields[i]
	}
	verdicts := p.remote.ClassifyBatch(ctx, batch)
	if len(verdicts) == 0 {
		return
	}
	withRemote := p.pipeline.WithParsers(classify.NewRemoteParser(verdicts))
	for _, i := range unknown {
		decisions[i].Classification = withRemote.Classify(fields[i])
	}
}

func (p *Planner) decideClassified(ctx context.Context, d *FieldDecision, occurrence map[model.Taxonomy]int, site model.SiteSettings, mode Mode) {
	c := d.Classification
	if !c.Known() {
		d.Decision = DecisionSkip
		d.Reason = "unrecognized"
		return
	}
	answers := p.kb.AnswersByType(ctx, c.Type)
	if len(answers) == 0 {
		d.Decision = DecisionSkip
		d.Reason = "no stored answer"
		return
	}

	var chosen model.AnswerValue
	if c.Type.IsExperienceGroup() {
		n := occurrence[c.Type]
		occurrence[c.Type] = n + 1
		if n >= len(answers) {
			d.Decision = DecisionSkip
			d.Candidates = answers
			d.Reason = "no entry for this occurrence"
			return
		}
		chosen = answers[n]
	} else {
		chosen = pickAnswer(d.Field, answers)
	}
	p.decide(d, chosen, answers, model.SourceClassification, site, mode)
}

// decide applies the autofill gates to a chosen answer.
func (p *Planner) decide(d *FieldDecision, a model.AnswerValue, candidates []model.AnswerValue, src model.PlanSource, site model.SiteSettings, mode Mode) {
	d.Candidates = candidates
	conf := d.Classification.Score

	switch {
	case a.IsSensitive() && !(a.AutofillAllowed && site.AutofillEnabled):
		d.Decision = DecisionSensitive
		d.Reason = "sensitive answer needs confirmation"
		return
	case !a.AutofillAllowed:
		d.Decision = DecisionSuggest
		d.Reason = "autofill disabled for answer"
		return
	case conf < p.opts.MinConfidence:
		d.Decision = DecisionSuggest
		d.Reason = "low confidence"
		return
	case mode == ModeAuto && !site.AutofillEnabled:
		d.Decision = DecisionSuggest
		d.Reason = "autofill disabled for site"
		return
	case mode == ModeAuto && hasValue(d.Field):
		d.Decision = DecisionSkip
		d.Reason = "field already has a value"
		return
	}

	d.Decision = DecisionFill
	d.Plan = &model.FillPlan{
		Field:      d.Field,
		Answer:     a,
		Confidence: conf,
		Source:     src,
	}
}

func (p *Planner) loadObservations(ctx context.Context, siteKey string) []observed {
	obs := p.kb.Observations(ctx, siteKey)
	if len(obs) == 0 {
		return nil
	}
	keys := make(map[string]*model.QuestionKey)
	out := make([]observed, 0, len(obs))
	for _, o := range obs {
		qk, seen := keys[o.QuestionKeyID]
		if !seen {
			qk = p.kb.QuestionKey(ctx, o.QuestionKeyID)
			keys[o.QuestionKeyID] = qk
		}
		if qk == nil {
			continue
		}
		out = append(out, observed{obs: o, qk: *qk})
	}
	return out
}

// fastPath reuses the answer of a prior observation whose question key
// closely matches the field. Experience-group types are excluded since the
// same question recurs once per entry.
func (p *Planner) fastPath(ctx context.Context, f model.FieldContext, history []observed) (*model.AnswerValue, model.QuestionKey, float64, bool) {
	if f.LabelText == "" || len(history) == 0 {
		return nil, model.QuestionKey{}, 0, false
	}
	var choiceHash string
	if len(f.Options) > 0 {
		choiceHash = textnorm.ChoiceSetHash(f.Options)
	}

	var best *observed
	bestSim := 0.0
	for i := range history {
		h := &history[i]
		if h.qk.Type.IsExperienceGroup() {
			continue
		}
		sim := h.qk.BestPhraseSimilarity(f.LabelText)
		if sim < p.opts.ObservationMatch {
			continue
		}
		if len(h.qk.SectionHints) > 0 && f.SectionTitle != "" && !h.qk.HasSectionHint(f.SectionTitle) {
			continue
		}
		if h.qk.ChoiceSetHash != "" && choiceHash != "" && h.qk.ChoiceSetHash != choiceHash {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && h.obs.Timestamp.After(best.obs.Timestamp)) {
			best, bestSim = h, sim
		}
	}
	if best == nil {
		return nil, model.QuestionKey{}, 0, false
	}
	a := p.kb.Answer(ctx, best.obs.AnswerID)
	if a == nil {
		return nil, model.QuestionKey{}, 0, false
	}
	return a, best.qk, bestSim, true
}

// pickAnswer prefers, among answers ordered by priority, the first one the
// field's options can represent.
func pickAnswer(f model.FieldContext, answers []model.AnswerValue) model.AnswerValue {
	if len(f.Options) == 0 {
		return answers[0]
	}
	for _, a := range answers {
		if _, ok := fill.MatchText(f.Options, a.Value, append([]string{a.Display}, a.Aliases...)); ok {
			return a
		}
	}
	return answers[0]
}

func fillable(f model.FieldContext) bool {
	switch f.Widget.Kind {
	case model.WidgetFile, model.WidgetUnsupported:
		return false
	}
	return true
}

func hasValue(f model.FieldContext) bool {
	switch f.Widget.Kind {
	case model.WidgetCheckbox, model.WidgetRadio:
		return false
	}
	return f.CurrentValue != ""
}
