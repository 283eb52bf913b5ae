package classify

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/textnorm"
)

// Base scores per signal.
const (
	scoreAutocomplete = 0.95
	scoreContext      = 0.9
	scoreLabel        = 0.85
	scoreChoiceSet    = 0.8
	scoreAttribute    = 0.75
	scoreSection      = 0.6

	// Keyword hits shorter than the best hit for the same text are demoted
	// by this much, so "First Name" prefers FIRST_NAME over FULL_NAME.
	specificityPenalty = 0.1
)

// AutocompleteParser reads the HTML autocomplete attribute.
type AutocompleteParser struct {
	tokens map[string]model.Taxonomy
}

// NewAutocompleteParser builds the parser from the rules' token table.
func NewAutocompleteParser(rules *Rules) *AutocompleteParser {
	tokens := make(map[string]model.Taxonomy, len(rules.Autocomplete))
	for k, v := range rules.Autocomplete {
		tokens[strings.ToLower(k)] = model.Taxonomy(v)
	}
	return &AutocompleteParser{tokens: tokens}
}

func (p *AutocompleteParser) Name() string  { return "autocomplete" }
func (p *AutocompleteParser) Priority() int { return PriorityAutocomplete }

func (p *AutocompleteParser) CanParse(f model.FieldContext) bool {
	ac := f.Attr("autocomplete")
	return ac != "" && ac != "off" && ac != "on"
}

func (p *AutocompleteParser) Parse(f model.FieldContext) []model.CandidateType {
	toks := strings.Fields(strings.ToLower(f.Attr("autocomplete")))
	for i := len(toks) - 1; i >= 0; i-- {
		if t, ok := p.tokens[toks[i]]; ok {
			return []model.CandidateType{candidate(p, t, scoreAutocomplete, "autocomplete="+toks[i])}
		}
	}
	return nil
}

// InputTypeParser maps typed inputs (email, tel, url, date) to a taxonomy.
type InputTypeParser struct{}

// NewInputTypeParser returns the input type parser.
func NewInputTypeParser() *InputTypeParser { return &InputTypeParser{} }

var inputTypes = map[string]struct {
	taxonomy model.Taxonomy
	score    float64
}{
	"email": {model.TaxonomyEmail, 0.9},
	"tel":   {model.TaxonomyPhone, 0.85},
	"url":   {model.TaxonomyWebsite, 0.7},
	"date":  {model.TaxonomyAvailableStartDate, 0.7},
}

func (p *InputTypeParser) Name() string  { return "input-type" }
func (p *InputTypeParser) Priority() int { return PriorityInputType }

func (p *InputTypeParser) CanParse(f model.FieldContext) bool {
	_, ok := inputTypes[f.InputType()]
	return ok
}

func (p *InputTypeParser) Parse(f model.FieldContext) []model.CandidateType {
	it, ok := inputTypes[f.InputType()]
	if !ok {
		return nil
	}
	return []model.CandidateType{candidate(p, it.taxonomy, it.score, "type="+f.InputType())}
}

// LabelParser matches the visible label against keyword and context
// rules, and the section title against keyword rules at a lower score.
type LabelParser struct {
	rules *Rules
}

// NewLabelParser returns a label parser over rules.
func NewLabelParser(rules *Rules) *LabelParser { return &LabelParser{rules: rules} }

func (p *LabelParser) Name() string  { return "label" }
func (p *LabelParser) Priority() int { return PriorityLabel }

func (p *LabelParser) CanParse(f model.FieldContext) bool {
	return strings.TrimSpace(f.LabelText) != "" || strings.TrimSpace(f.SectionTitle) != ""
}

func (p *LabelParser) Parse(f model.FieldContext) []model.CandidateType {
	label := textnorm.Fold(f.LabelText)
	section := textnorm.Fold(f.SectionTitle)

	var out []model.CandidateType
	if label != "" && section != "" {
		for i := range p.rules.Contexts {
			cr := &p.rules.Contexts[i]
			if !cr.appliesTo(section) {
				continue
			}
			if t, phrase := bestContextPhrase(cr, label); phrase != "" {
				out = append(out, candidate(p, t, scoreContext, "section "+section+": "+phrase))
			}
		}
	}
	out = append(out, keywordCandidates(p, p.rules.Keywords, label, scoreLabel, "label")...)
	out = append(out, keywordCandidates(p, p.rules.Keywords, section, scoreSection, "section")...)
	return out
}

func bestContextPhrase(cr *ContextRule, label string) (model.Taxonomy, string) {
	var (
		best   model.Taxonomy
		phrase string
		n      int
	)
	for kw, t := range cr.keywords {
		if !containsPhrase(label, kw) {
			continue
		}
		l := len(strings.Fields(kw))
		// Ties on length resolve alphabetically to stay deterministic.
		if l > n || (l == n && kw < phrase) {
			best, phrase, n = t, kw, l
		}
	}
	return best, phrase
}

// keywordCandidates scores every keyword rule against folded text. The
// longest hit scores base; shorter hits are demoted by specificityPenalty.
func keywordCandidates(p Parser, rules []KeywordRule, folded string, base float64, source string) []model.CandidateType {
	if folded == "" {
		return nil
	}
	type hit struct {
		rule   *KeywordRule
		length int
		kw     string
	}
	var hits []hit
	longest := 0
	for i := range rules {
		n, kw := rules[i].match(folded)
		if n == 0 {
			continue
		}
		hits = append(hits, hit{rule: &rules[i], length: n, kw: kw})
		if n > longest {
			longest = n
		}
	}
	out := make([]model.CandidateType, 0, len(hits))
	for _, h := range hits {
		score := base
		if h.length < longest {
			score -= specificityPenalty
		}
		out = append(out, candidate(p, h.rule.taxonomy, score, source+" keyword "+h.kw))
	}
	return out
}

// AttributeParser matches name, id, placeholder and aria attributes
// against keyword rules.
type AttributeParser struct {
	rules *Rules
}

// NewAttributeParser returns an attribute parser over rules.
func NewAttributeParser(rules *Rules) *AttributeParser { return &AttributeParser{rules: rules} }

var attributeNames = []string{"name", "id", "placeholder", "aria-label", "data-automation-id", "data-qa", "title"}

func (p *AttributeParser) Name() string  { return "attribute" }
func (p *AttributeParser) Priority() int { return PriorityAttribute }

func (p *AttributeParser) CanParse(f model.FieldContext) bool {
	for _, a := range attributeNames {
		if f.Attr(a) != "" {
			return true
		}
	}
	return false
}

func (p *AttributeParser) Parse(f model.FieldContext) []model.CandidateType {
	var out []model.CandidateType
	for _, a := range attributeNames {
		v := f.Attr(a)
		if v == "" {
			continue
		}
		out = append(out, keywordCandidates(p, p.rules.Keywords, textnorm.Fold(splitCamel(v)), scoreAttribute, a)...)
	}
	return out
}

// splitCamel inserts spaces at lower-to-upper transitions: "firstName"
// becomes "first Name".
func splitCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// ChoiceSetParser recognises fields from the options they offer.
type ChoiceSetParser struct {
	rules *Rules
}

// NewChoiceSetParser returns a choice-set parser over rules.
func NewChoiceSetParser(rules *Rules) *ChoiceSetParser { return &ChoiceSetParser{rules: rules} }

func (p *ChoiceSetParser) Name() string  { return "choice-set" }
func (p *ChoiceSetParser) Priority() int { return PriorityChoiceSet }

func (p *ChoiceSetParser) CanParse(f model.FieldContext) bool {
	return len(f.Options) >= 2
}

func (p *ChoiceSetParser) Parse(f model.FieldContext) []model.CandidateType {
	options := foldAll(f.Options)
	var out []model.CandidateType
	for i := range p.rules.Choices {
		cr := &p.rules.Choices[i]
		if cr.matches(options) {
			out = append(out, candidate(p, cr.taxonomy, scoreChoiceSet, "options match "+string(cr.taxonomy)))
		}
	}
	return out
}

// ValueParser infers a type from the shape of the field's current value.
// It mostly serves the observation recorder, which classifies edits.
type ValueParser struct{}

// NewValueParser returns the value-shape parser.
func NewValueParser() *ValueParser { return &ValueParser{} }

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[\d\s().-]{7,20}$`)
	dateRe  = regexp.MustCompile(`^\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}$`)
	urlRe   = regexp.MustCompile(`(?i)^(https?://)?([a-z0-9-]+\.)+[a-z]{2,}(/\S*)?$`)
)

func (p *ValueParser) Name() string  { return "value" }
func (p *ValueParser) Priority() int { return PriorityValue }

func (p *ValueParser) CanParse(f model.FieldContext) bool {
	return strings.TrimSpace(f.CurrentValue) != ""
}

func (p *ValueParser) Parse(f model.FieldContext) []model.CandidateType {
	v := strings.TrimSpace(f.CurrentValue)
	lower := strings.ToLower(v)
	switch {
	case emailRe.MatchString(v):
		return []model.CandidateType{candidate(p, model.TaxonomyEmail, 0.7, "value looks like email")}
	case strings.Contains(lower, "linkedin.com/"):
		return []model.CandidateType{candidate(p, model.TaxonomyLinkedIn, 0.9, "value is a linkedin url")}
	case strings.Contains(lower, "github.com/"):
		return []model.CandidateType{candidate(p, model.TaxonomyGitHub, 0.9, "value is a github url")}
	case urlRe.MatchString(v):
		return []model.CandidateType{candidate(p, model.TaxonomyWebsite, 0.6, "value looks like url")}
	case phoneRe.MatchString(v) && !dateRe.MatchString(v) && countDigits(v) >= 7:
		return []model.CandidateType{candidate(p, model.TaxonomyPhone, 0.6, "value looks like phone")}
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
