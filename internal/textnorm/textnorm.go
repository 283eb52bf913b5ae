// Package textnorm folds human-entered label and value text into a
// comparable form. Matching across sites depends on every caller folding
// text the same way, so all phrase and alias comparisons go through here.
package textnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics, replaces punctuation with spaces
// and collapses whitespace. "Prénom*  (Given-Name)" folds to "prenom given name".
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}

	var b strings.Builder
	b.Grow(len(out))
	space := true
	for _, r := range strings.ToLower(out) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the folded words of s.
func Tokens(s string) []string {
	return strings.Fields(Fold(s))
}

// Equal reports whether a and b fold to the same text.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Similarity scores two phrases in [0,1]. Identical folded text scores 1;
// otherwise the score is the token Jaccard index, boosted when one phrase's
// tokens are fully contained in the other's.
func Similarity(a, b string) float64 {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return 1
	}

	ta, tb := tokenSet(fa), tokenSet(fb)
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	score := float64(inter) / float64(union)

	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	if inter == smaller && smaller > 0 {
		contained := 0.5 + 0.4*float64(smaller)/float64(union)
		if contained > score {
			score = contained
		}
	}
	return score
}

// ChoiceSetHash fingerprints a set of selectable options independent of
// order and formatting. Returns "" for an empty set.
func ChoiceSetHash(options []string) string {
	folded := make([]string, 0, len(options))
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		f := Fold(o)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		folded = append(folded, f)
	}
	if len(folded) == 0 {
		return ""
	}
	sort.Strings(folded)
	sum := sha256.Sum256([]byte(strings.Join(folded, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tokenSet(folded string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(folded) {
		set[tok] = true
	}
	return set
}
