package fill

import (
	"strings"

	"github.com/sells-group/formpilot/internal/textnorm"
)

// MinOptionScore is the cutoff below which no option matches.
const MinOptionScore = 0.6

// Option match tiers.
const (
	matchExact  = 1.0
	matchAlias  = 0.9
	matchPrefix = 0.8
	matchTokens = 0.7
)

// OptionMatch is the chosen option and how it matched.
type OptionMatch struct {
	Option Option  `json:"option"`
	Score  float64 `json:"score"`
	How    string  `json:"how"`
}

// MatchOption picks the option best matching value, trying exact folded
// text, then aliases, then prefix, then token containment, then plain
// similarity. The earliest option wins a tie.
func MatchOption(options []Option, value string, aliases []string) (OptionMatch, bool) {
	fv := textnorm.Fold(value)
	if fv == "" || len(options) == 0 {
		return OptionMatch{}, false
	}
	falias := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if f := textnorm.Fold(a); f != "" {
			falias = append(falias, f)
		}
	}

	var best OptionMatch
	for _, o := range options {
		score, how := scoreOption(o, fv, falias)
		if score > best.Score {
			best = OptionMatch{Option: o, Score: score, How: how}
		}
	}
	if best.Score < MinOptionScore {
		return OptionMatch{}, false
	}
	return best, true
}

// MatchText is MatchOption over plain option labels.
func MatchText(options []string, value string, aliases []string) (OptionMatch, bool) {
	opts := make([]Option, len(options))
	for i, t := range options {
		opts[i] = Option{Index: i, Text: t}
	}
	return MatchOption(opts, value, aliases)
}

func scoreOption(o Option, fv string, falias []string) (float64, string) {
	texts := []string{textnorm.Fold(o.Text)}
	if o.Value != "" {
		texts = append(texts, textnorm.Fold(o.Value))
	}

	for _, t := range texts {
		if t != "" && t == fv {
			return matchExact, "exact"
		}
	}
	for _, t := range texts {
		for _, a := range falias {
			if t != "" && t == a {
				return matchAlias, "alias"
			}
		}
	}

	ft := texts[0]
	if ft == "" {
		return 0, ""
	}
	if strings.HasPrefix(ft+" ", fv+" ") || strings.HasPrefix(fv+" ", ft+" ") {
		return matchPrefix, "prefix"
	}
	if containsTokens(ft, fv) {
		return matchTokens, "tokens"
	}
	if s := textnorm.Similarity(ft, fv); s >= MinOptionScore {
		return s * matchTokens, "similarity"
	}
	return 0, ""
}

// containsTokens reports whether every token of needle occurs in hay.
func containsTokens(hay, needle string) bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(hay) {
		set[t] = true
	}
	for _, t := range strings.Fields(needle) {
		if !set[t] {
			return false
		}
	}
	return true
}
