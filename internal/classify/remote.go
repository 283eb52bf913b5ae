package classify

import (
	"github.com/sells-group/formpilot/internal/model"
)

// RemoteResult is one remote classifier verdict for a field.
type RemoteResult struct {
	Type       model.Taxonomy
	Confidence float64
}

// RemoteParser replays verdicts fetched for a batch of fields. It holds
// no client; the batch call happens before classification.
type RemoteParser struct {
	results map[string]RemoteResult
}

// NewRemoteParser wraps verdicts keyed by field key.
func NewRemoteParser(results map[string]RemoteResult) *RemoteParser {
	return &RemoteParser{results: results}
}

func (p *RemoteParser) Name() string  { return "remote" }
func (p *RemoteParser) Priority() int { return PriorityRemote }

func (p *RemoteParser) CanParse(f model.FieldContext) bool {
	r, ok := p.results[f.Key()]
	return ok && r.Type != model.TaxonomyUnknown && r.Confidence > 0
}

func (p *RemoteParser) Parse(f model.FieldContext) []model.CandidateType {
	r, ok := p.results[f.Key()]
	if !ok || r.Type == model.TaxonomyUnknown {
		return nil
	}
	score := r.Confidence
	if score > 1 {
		score = 1
	}
	return []model.CandidateType{candidate(p, r.Type, score, "remote classifier")}
}
