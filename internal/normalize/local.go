package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/formpilot/internal/textnorm"
)

var monthNames = map[string]int{
	"jan": 1, "january": 1, "janvier": 1,
	"feb": 2, "february": 2, "fevrier": 2,
	"mar": 3, "march": 3, "mars": 3,
	"apr": 4, "april": 4, "avril": 4,
	"may": 5, "mai": 5,
	"jun": 6, "june": 6, "juin": 6,
	"jul": 7, "july": 7, "juillet": 7,
	"aug": 8, "august": 8, "aout": 8,
	"sep": 9, "sept": 9, "september": 9, "septembre": 9,
	"oct": 10, "october": 10, "octobre": 10,
	"nov": 11, "november": 11, "novembre": 11,
	"dec": 12, "december": 12, "decembre": 12,
}

// seasons map academic terms to the month a term usually ends.
var seasons = map[string]int{
	"spring": 5, "summer": 8, "fall": 12, "autumn": 12, "winter": 12,
}

var presentWords = map[string]bool{
	"present": true, "current": true, "now": true, "today": true, "ongoing": true,
}

var (
	isoDateRe   = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})(?:[-/.](\d{1,2}))?$`)
	usDateRe    = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{2}|\d{4})$`)
	monthYearRe = regexp.MustCompile(`^(\d{1,2})[-/.](\d{4})$`)
	yearRe      = regexp.MustCompile(`^(19|20)\d{2}$`)
)

// localDate parses common human date spellings. Unparseable input yields a
// zero-confidence result with an empty Value.
func localDate(raw string) Result {
	r := Result{Kind: KindDate, Input: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return r
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return dateResult(r, atoi(m[1]), atoi(m[2]), atoi(m[3]), "local rule: iso date")
	}
	if m := usDateRe.FindStringSubmatch(s); m != nil {
		return dateResult(r, expandYear(atoi(m[3])), atoi(m[1]), atoi(m[2]), "local rule: numeric m/d/y")
	}
	if m := monthYearRe.FindStringSubmatch(s); m != nil {
		return dateResult(r, atoi(m[2]), atoi(m[1]), 0, "local rule: numeric m/y")
	}

	words := textnorm.Tokens(s)
	if len(words) == 1 && presentWords[words[0]] {
		r.Value = "present"
		r.Parts = map[string]string{"present": "true"}
		r.Confidence = 0.9
		r.Reasons = []string{"local rule: present keyword"}
		return r
	}

	var year, month, day int
	reason := ""
	for _, w := range words {
		switch {
		case yearRe.MatchString(w):
			year = atoi(w)
		case monthNames[w] != 0 && month == 0:
			month = monthNames[w]
			reason = "local rule: month name"
		case seasons[w] != 0 && month == 0:
			month = seasons[w]
			reason = "local rule: season"
		case isDayToken(w) && day == 0:
			day = atoi(strings.TrimRight(w, "stndrh"))
		}
	}
	if year == 0 {
		return r
	}
	if month == 0 {
		r.Value = fmt.Sprintf("%04d", year)
		r.Parts = map[string]string{"year": r.Value}
		r.Confidence = 0.7
		r.Reasons = []string{"local rule: bare year"}
		return r
	}
	res := dateResult(r, year, month, day, reason)
	if reason == "local rule: season" {
		res.Confidence = 0.6
	}
	return res
}

func dateResult(r Result, year, month, day int, reason string) Result {
	if month < 1 || month > 12 || year < 1900 || year > 2100 || day < 0 || day > 31 {
		return r
	}
	r.Parts = map[string]string{
		"year":  fmt.Sprintf("%04d", year),
		"month": fmt.Sprintf("%02d", month),
	}
	r.Reasons = []string{reason}
	if day == 0 {
		r.Value = fmt.Sprintf("%04d-%02d", year, month)
		r.Confidence = 0.85
		return r
	}
	r.Parts["day"] = fmt.Sprintf("%02d", day)
	r.Value = fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	r.Confidence = 0.9
	return r
}

func isDayToken(w string) bool {
	d := strings.TrimRight(w, "stndrh")
	if d == "" || len(d) > 2 {
		return false
	}
	n, err := strconv.Atoi(d)
	return err == nil && n >= 1 && n <= 31
}

func expandYear(y int) int {
	if y >= 100 {
		return y
	}
	if y < 70 {
		return 2000 + y
	}
	return 1900 + y
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var (
	honorifics = map[string]bool{"mr": true, "mrs": true, "ms": true, "miss": true, "mx": true, "dr": true, "prof": true}
	suffixes   = map[string]bool{"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "phd": true, "md": true, "esq": true}
	particles  = map[string]bool{"van": true, "von": true, "de": true, "da": true, "del": true, "della": true, "la": true, "le": true, "di": true, "du": true, "der": true, "den": true, "bin": true, "al": true}
)

// localName splits a pasted full name into first, middle and last parts.
func localName(raw string) Result {
	r := Result{Kind: KindName, Input: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return r
	}

	// "Last, First Middle"
	if last, rest, ok := strings.Cut(s, ","); ok && !isSuffix(rest) {
		s = strings.TrimSpace(rest) + " " + strings.TrimSpace(last)
	}

	var toks []string
	for _, t := range strings.Fields(s) {
		key := strings.Trim(strings.ToLower(t), ".,")
		if honorifics[key] || suffixes[key] || key == "" {
			continue
		}
		toks = append(toks, strings.Trim(t, ","))
	}
	if len(toks) == 0 {
		return r
	}
	for i, t := range toks {
		if i > 0 && particles[strings.ToLower(t)] {
			continue
		}
		toks[i] = fixCase(t)
	}

	parts := map[string]string{"first": toks[0]}
	switch {
	case len(toks) == 1:
		r.Confidence = 0.5
	default:
		lastStart := len(toks) - 1
		for lastStart > 1 && particles[strings.ToLower(toks[lastStart-1])] {
			lastStart--
		}
		parts["last"] = strings.Join(toks[lastStart:], " ")
		if lastStart > 1 {
			parts["middle"] = strings.Join(toks[1:lastStart], " ")
			r.Confidence = 0.6
		} else {
			r.Confidence = 0.8
		}
	}
	r.Parts = parts
	r.Value = strings.Join(toks, " ")
	r.Reasons = []string{"local rule: name tokens"}
	return r
}

func isSuffix(s string) bool {
	return suffixes[strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")]
}

// fixCase title-cases tokens typed entirely in one case and leaves mixed
// case ("McDonald", "DeVito") alone.
func fixCase(t string) string {
	if t != strings.ToLower(t) && t != strings.ToUpper(t) {
		return t
	}
	var b strings.Builder
	upperNext := true
	for _, r := range strings.ToLower(t) {
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(r)
		}
		upperNext = r == '-' || r == '\''
	}
	return b.String()
}

var (
	truthy = map[string]bool{"yes": true, "y": true, "true": true, "1": true, "oui": true, "si": true, "authorized": true, "i am": true, "i do": true, "i will": true, "will": true}
	falsy  = map[string]bool{"no": true, "n": true, "false": true, "0": true, "non": true, "not authorized": true, "i am not": true, "i do not": true, "i will not": true, "none": true}
)

// localBoolean maps yes/no phrasings to "Yes" or "No".
func localBoolean(raw string) Result {
	r := Result{Kind: KindBoolean, Input: raw}
	f := textnorm.Fold(raw)
	switch {
	case truthy[f]:
		r.Value, r.Confidence = "Yes", 0.9
	case falsy[f]:
		r.Value, r.Confidence = "No", 0.9
	case strings.HasPrefix(f, "yes "):
		r.Value, r.Confidence = "Yes", 0.7
	case strings.HasPrefix(f, "no "):
		r.Value, r.Confidence = "No", 0.7
	default:
		return r
	}
	r.Parts = map[string]string{"bool": strings.ToLower(r.Value)}
	r.Reasons = []string{"local rule: boolean phrase"}
	return r
}

// localText trims and collapses whitespace. It never fails.
func localText(raw string) Result {
	v := strings.Join(strings.Fields(raw), " ")
	r := Result{Kind: KindText, Input: raw, Value: v}
	if utf8.RuneCountInString(v) > 0 {
		r.Confidence = 1
		r.Reasons = []string{"local rule: whitespace"}
	}
	return r
}
