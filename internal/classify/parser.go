// Package classify maps a scanned form field to a taxonomy type by running
// an ordered registry of independent parsers and merging their votes.
package classify

import (
	"sort"
	"sync"

	"github.com/sells-group/formpilot/internal/model"
)

// Parser priorities. Higher wins a tie on merged score.
const (
	PriorityAutocomplete = 100
	PriorityInputType    = 90
	PriorityLabel        = 80
	PriorityChoiceSet    = 70
	PriorityAttribute    = 60
	PriorityValue        = 50
	PriorityRemote       = 10
)

// Parser proposes taxonomy candidates for a field. Parse never fails:
// input it cannot interpret yields no candidates.
type Parser interface {
	Name() string
	Priority() int
	CanParse(f model.FieldContext) bool
	Parse(f model.FieldContext) []model.CandidateType
}

// Registry is a priority-ordered set of parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers []Parser
}

// NewRegistry returns a registry holding ps.
func NewRegistry(ps ...Parser) *Registry {
	r := &Registry{}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// DefaultRegistry builds the offline parsers over rules.
func DefaultRegistry(rules *Rules) *Registry {
	return NewRegistry(
		NewAutocompleteParser(rules),
		NewInputTypeParser(),
		NewLabelParser(rules),
		NewChoiceSetParser(rules),
		NewAttributeParser(rules),
		NewValueParser(),
	)
}

// Register adds p, keeping the registry sorted by descending priority.
// Parsers of equal priority keep registration order.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers = append(r.parsers, p)
	sort.SliceStable(r.parsers, func(i, j int) bool {
		return r.parsers[i].Priority() > r.parsers[j].Priority()
	})
}

// Parsers returns a snapshot of the registered parsers in priority order.
func (r *Registry) Parsers() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Parser, len(r.parsers))
	copy(out, r.parsers)
	return out
}

// Len returns the number of registered parsers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parsers)
}

func candidate(p Parser, t model.Taxonomy, score float64, reason string) model.CandidateType {
	return model.CandidateType{
		Type:     t,
		Score:    score,
		Reasons:  []string{reason},
		Parser:   p.Name(),
		Priority: p.Priority(),
	}
}
