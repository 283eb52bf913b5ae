package classify

import (
	_ "embed"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/textnorm"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules are the local keyword, context and choice tables used by the
// offline parsers.
type Rules struct {
	Autocomplete map[string]string `yaml:"autocomplete"`
	Keywords     []KeywordRule     `yaml:"keywords"`
	Contexts     []ContextRule     `yaml:"contexts"`
	Choices      []ChoiceRule      `yaml:"choices"`
}

// KeywordRule maps label or attribute phrases to a taxonomy.
type KeywordRule struct {
	Type     string   `yaml:"type"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
	Exclude  []string `yaml:"exclude"`

	taxonomy model.Taxonomy
	keywords []string
	exclude  []string
	patterns []*regexp.Regexp
}

// ContextRule maps short label phrases to a taxonomy when the enclosing
// section matches.
type ContextRule struct {
	Sections []string          `yaml:"sections"`
	Keywords map[string]string `yaml:"keywords"`

	sections []string
	keywords map[string]model.Taxonomy
}

// ChoiceRule recognises a field by the options it offers.
type ChoiceRule struct {
	Type       string     `yaml:"type"`
	Signatures [][]string `yaml:"signatures"`

	taxonomy   model.Taxonomy
	signatures [][]string
}

// DefaultRules parses the embedded rule tables.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules reads a rule file. An empty path yields the embedded rules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read rules %s", path)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a rules document. The document has a
// top-level "classify" key.
func ParseRules(data []byte) (*Rules, error) {
	var wrapper struct {
		Classify Rules `yaml:"classify"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "classify: parse rules")
	}
	r := &wrapper.Classify
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rules) compile() error {
	for token, name := range r.Autocomplete {
		t, ok := model.ParseTaxonomy(name)
		if !ok || t == model.TaxonomyUnknown {
			return eris.Errorf("classify: autocomplete %q: unknown type %q", token, name)
		}
		r.Autocomplete[token] = string(t)
	}

	for i := range r.Keywords {
		kr := &r.Keywords[i]
		t, ok := model.ParseTaxonomy(kr.Type)
		if !ok || t == model.TaxonomyUnknown {
			return eris.Errorf("classify: keyword rule %d: unknown type %q", i, kr.Type)
		}
		kr.taxonomy = t
		kr.keywords = foldAll(kr.Keywords)
		kr.exclude = foldAll(kr.Exclude)
		for _, p := range kr.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return eris.Wrapf(err, "classify: keyword rule %s: pattern %q", t, p)
			}
			kr.patterns = append(kr.patterns, re)
		}
	}

	for i := range r.Contexts {
		cr := &r.Contexts[i]
		cr.sections = foldAll(cr.Sections)
		cr.keywords = make(map[string]model.Taxonomy, len(cr.Keywords))
		for phrase, name := range cr.Keywords {
			t, ok := model.ParseTaxonomy(name)
			if !ok || t == model.TaxonomyUnknown {
				return eris.Errorf("classify: context rule %d: unknown type %q", i, name)
			}
			cr.keywords[textnorm.Fold(phrase)] = t
		}
	}

	for i := range r.Choices {
		cr := &r.Choices[i]
		t, ok := model.ParseTaxonomy(cr.Type)
		if !ok || t == model.TaxonomyUnknown {
			return eris.Errorf("classify: choice rule %d: unknown type %q", i, cr.Type)
		}
		cr.taxonomy = t
		for _, sig := range cr.Signatures {
			cr.signatures = append(cr.signatures, foldAll(sig))
		}
	}
	return nil
}

// match returns the token length of the longest keyword found in folded
// text, or 0. Pattern hits count as two tokens.
func (kr *KeywordRule) match(folded string) (int, string) {
	if folded == "" {
		return 0, ""
	}
	for _, ex := range kr.exclude {
		if containsPhrase(folded, ex) {
			return 0, ""
		}
	}
	best, hit := 0, ""
	for _, kw := range kr.keywords {
		if !containsPhrase(folded, kw) {
			continue
		}
		if n := len(strings.Fields(kw)); n > best {
			best, hit = n, kw
		}
	}
	for _, re := range kr.patterns {
		if re.MatchString(folded) && best < 2 {
			best, hit = 2, re.String()
		}
	}
	return best, hit
}

// appliesTo reports whether the folded section title belongs to this context.
func (cr *ContextRule) appliesTo(section string) bool {
	for _, s := range cr.sections {
		if containsPhrase(section, s) {
			return true
		}
	}
	return false
}

// matches reports whether every phrase of a signature occurs among options.
func (cr *ChoiceRule) matches(options []string) bool {
	for _, sig := range cr.signatures {
		if len(sig) == 0 {
			continue
		}
		all := true
		for _, phrase := range sig {
			found := false
			for _, o := range options {
				if containsPhrase(o, phrase) {
					found = true
					break
				}
			}
			if !found {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs in text on token
// boundaries. Both arguments must already be folded.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := textnorm.Fold(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}
