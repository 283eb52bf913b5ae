package classify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/model"
)

// DefaultThreshold is the minimum merged score for a field to be known.
const DefaultThreshold = 0.5

// Pipeline runs every applicable parser over a field and merges the votes.
// It performs no I/O of its own and never returns an error.
type Pipeline struct {
	registry  *Registry
	merge     MergeStrategy
	threshold float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThreshold sets the acceptance threshold.
func WithThreshold(t float64) Option {
	return func(p *Pipeline) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// WithMergeStrategy sets the merge strategy.
func WithMergeStrategy(m MergeStrategy) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.merge = m
		}
	}
}

// New returns a pipeline over reg using max merging and DefaultThreshold
// unless overridden.
func New(reg *Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  reg,
		merge:     MaxMerge{},
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewDefault loads rules from rulesPath (embedded rules when empty) and
// builds the offline pipeline.
func NewDefault(rulesPath string, opts ...Option) (*Pipeline, error) {
	rules, err := LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}
	return New(DefaultRegistry(rules), opts...), nil
}

// Threshold returns the acceptance threshold.
func (p *Pipeline) Threshold() float64 { return p.threshold }

// Strategy returns the active merge strategy.
func (p *Pipeline) Strategy() MergeStrategy { return p.merge }

// WithParsers returns a copy of the pipeline whose registry also holds
// extra. The receiver is unchanged.
func (p *Pipeline) WithParsers(extra ...Parser) *Pipeline {
	reg := NewRegistry(p.registry.Parsers()...)
	for _, e := range extra {
		reg.Register(e)
	}
	return &Pipeline{registry: reg, merge: p.merge, threshold: p.threshold}
}

// Classify resolves one field. A best merged score below the threshold
// yields UNKNOWN with score 0; Candidates still carries every vote.
func (p *Pipeline) Classify(f model.FieldContext) model.Classification {
	var cands []model.CandidateType
	for _, parser := range p.registry.Parsers() {
		cands = append(cands, p.run(parser, f)...)
	}

	merged := p.merge.Merge(cands)
	out := model.Classification{
		FieldID:    f.Key(),
		Type:       model.TaxonomyUnknown,
		Candidates: merged,
	}
	if len(merged) == 0 {
		return out
	}

	best := merged[0]
	if best.Score < p.threshold {
		zap.L().Debug("classify: below threshold",
			zap.String("field", out.FieldID),
			zap.String("best", string(best.Type)),
			zap.Float64("score", best.Score),
		)
		return out
	}

	out.Type = best.Type
	out.Score = best.Score
	out.Reasons = best.Reasons
	zap.L().Debug("classify: classified field",
		zap.String("field", out.FieldID),
		zap.String("type", string(out.Type)),
		zap.Float64("score", out.Score),
		zap.String("parser", best.Parser),
	)
	return out
}

// ClassifyAll classifies fields in order.
func (p *Pipeline) ClassifyAll(fields []model.FieldContext) []model.Classification {
	out := make([]model.Classification, len(fields))
	for i, f := range fields {
		out[i] = p.Classify(f)
	}
	return out
}

// run invokes one parser, converting a panic into no candidates.
func (p *Pipeline) run(parser Parser, f model.FieldContext) (cands []model.CandidateType) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("classify: parser panicked",
				zap.String("parser", parser.Name()),
				zap.String("field", f.Key()),
				zap.String("panic", fmt.Sprint(r)),
			)
			cands = nil
		}
	}()
	if !parser.CanParse(f) {
		return nil
	}
	return parser.Parse(f)
}
