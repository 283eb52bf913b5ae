package llm

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/jsonc"
)

// ErrUnparseable means no JSON value could be recovered from model output.
var ErrUnparseable = eris.New("llm: unparseable model output")

var smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")

// Decode extracts the JSON value embedded in model output and unmarshals
// it into out. It tolerates code fences, leading prose, comments, trailing
// commas, smart quotes and a truncated tail.
func Decode(text string, out any) error {
	candidate := cleanJSON(text)
	if candidate == "" {
		return ErrUnparseable
	}
	for _, attempt := range []func(string) string{
		func(s string) string { return s },
		func(s string) string { return string(jsonc.ToJSON([]byte(s))) },
		func(s string) string { return string(jsonc.ToJSON([]byte(smartQuotes.Replace(s)))) },
		func(s string) string { return closeTruncated(string(jsonc.ToJSON([]byte(smartQuotes.Replace(s))))) },
	} {
		if err := json.Unmarshal([]byte(attempt(candidate)), out); err == nil {
			return nil
		}
	}
	return ErrUnparseable
}

// cleanJSON strips markdown fences and surrounding prose, keeping the span
// from the first opening brace or bracket to the last matching closer.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		// Truncated output: keep everything after the opener.
		return s[start:]
	}
	return s[start : end+1]
}

// closeTruncated appends the closers a cut-off document is missing. An
// unterminated string is closed first, and a dangling comma dropped.
func closeTruncated(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	s = strings.TrimRight(strings.TrimSpace(s), ",")
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
