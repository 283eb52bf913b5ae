package classify

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/model"
)

// Merge strategy names accepted by ParseMergeStrategy.
const (
	MergeMax    = "max"
	MergeMaxSum = "max_sum"
)

// agreementBonus is added per extra parser agreeing on a type under max_sum.
const agreementBonus = 0.05

// MergeStrategy folds all parser candidates for one field into one
// candidate per type, ordered best first.
type MergeStrategy interface {
	Name() string
	Merge(cands []model.CandidateType) []model.CandidateType
}

// AllMergeStrategies returns the supported strategy names.
func AllMergeStrategies() []string {
	return []string{MergeMax, MergeMaxSum}
}

// ParseMergeStrategy resolves a strategy by name. "" selects max.
func ParseMergeStrategy(name string) (MergeStrategy, error) {
	switch name {
	case "", MergeMax:
		return MaxMerge{}, nil
	case MergeMaxSum:
		return MaxSumMerge{}, nil
	default:
		return nil, eris.Errorf("classify: unknown merge strategy %q", name)
	}
}

// MaxMerge scores each type by its single strongest vote. Weak votes never
// dilute a confident one.
type MaxMerge struct{}

func (MaxMerge) Name() string { return MergeMax }

func (MaxMerge) Merge(cands []model.CandidateType) []model.CandidateType {
	groups := groupByType(cands)
	out := make([]model.CandidateType, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.best)
	}
	sortMerged(out)
	return out
}

// MaxSumMerge is MaxMerge plus a small bonus for every additional parser
// that agrees on the type, capped at 1.
type MaxSumMerge struct{}

func (MaxSumMerge) Name() string { return MergeMaxSum }

func (MaxSumMerge) Merge(cands []model.CandidateType) []model.CandidateType {
	groups := groupByType(cands)
	out := make([]model.CandidateType, 0, len(groups))
	for _, g := range groups {
		c := g.best
		if extra := len(g.parsers) - 1; extra > 0 {
			c.Score += agreementBonus * float64(extra)
			if c.Score > 1 {
				c.Score = 1
			}
		}
		out = append(out, c)
	}
	sortMerged(out)
	return out
}

type typeGroup struct {
	best    model.CandidateType
	parsers map[string]bool
}

// groupByType keeps, per type, the highest-scoring candidate (highest
// priority on equal score) and the union of all reasons.
func groupByType(cands []model.CandidateType) map[model.Taxonomy]*typeGroup {
	groups := make(map[model.Taxonomy]*typeGroup)
	for _, c := range cands {
		if c.Type == "" || c.Type == model.TaxonomyUnknown {
			continue
		}
		g, ok := groups[c.Type]
		if !ok {
			c.Reasons = append([]string(nil), c.Reasons...)
			groups[c.Type] = &typeGroup{best: c, parsers: map[string]bool{c.Parser: true}}
			continue
		}
		g.parsers[c.Parser] = true
		reasons := append(g.best.Reasons, c.Reasons...)
		if c.Score > g.best.Score || (c.Score == g.best.Score && c.Priority > g.best.Priority) {
			g.best = c
		}
		g.best.Reasons = reasons
	}
	return groups
}

// sortMerged orders by score, then the producing parser's priority, then
// type name for determinism.
func sortMerged(cs []model.CandidateType) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		if cs[i].Priority != cs[j].Priority {
			return cs[i].Priority > cs[j].Priority
		}
		return cs[i].Type < cs[j].Type
	})
}
