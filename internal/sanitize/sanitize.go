// Package sanitize strips markup and instruction-like text from values
// before they are sent to a remote model.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sells-group/formpilot/internal/textnorm"
)

// injectionPatterns match text that tries to steer the remote model.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|messages?)`),
	regexp.MustCompile(`(?i)(reveal|show|print|output|display|repeat)\s+(your\s+)?(system\s+)?(prompt|instructions?|rules?|config)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+\w+`),
	regexp.MustCompile(`(?i)(pretend|act)\s+(like\s+)?(you\s+are|to\s+be)\b`),
	regexp.MustCompile(`(?i)enter\s+(dan|developer|god|sudo|admin)\s+mode`),
	regexp.MustCompile(`(?i)<\|?(system|endof(text|turn)|im_start|im_end)\|?>`),
	regexp.MustCompile(`(?i)\[/?INST\]|\[SYS(TEM)?\]`),
	regexp.MustCompile(`(?i)\b(system|assistant|user)\s*:`),
	regexp.MustCompile("```"),
	regexp.MustCompile(`(?i)javascript\s*:`),
}

// DefaultMaxChars bounds a cleaned value when no limit is given.
const DefaultMaxChars = 200

var whitespace = regexp.MustCompile(`\s+`)

// Sanitizer strips markup and instruction-like text from user or page text
// before it leaves the device.
type Sanitizer struct {
	policy   *bluemonday.Policy
	maxChars int
}

// New returns a sanitizer truncating each value to maxChars runes.
func New(maxChars int) *Sanitizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Sanitizer{policy: bluemonday.StrictPolicy(), maxChars: maxChars}
}

// Clean returns s without HTML, injection phrases or control whitespace,
// truncated to the configured length.
func (s *Sanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	out := html.UnescapeString(s.policy.Sanitize(in))
	for _, re := range injectionPatterns {
		out = re.ReplaceAllString(out, " ")
	}
	out = strings.TrimSpace(whitespace.ReplaceAllString(out, " "))
	return textnorm.Truncate(out, s.maxChars)
}

// Flagged reports whether in contains an instruction-like phrase.
func Flagged(in string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(in) {
			return true
		}
	}
	return false
}
