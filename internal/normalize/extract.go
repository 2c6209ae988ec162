// Package normalize turns free-form model text into canonical structures.
// Nothing here returns an error for malformed model output: analyses degrade to
// the parse-failed shape, and verdicts report failure to the judge loop.
package normalize

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:[A-Za-z]+)?[ \\t]*\\r?\\n?(.*?)\\r?\\n?```")

// ExtractJSON finds the JSON candidate in model text: the contents of the first
// fenced block, else the first balanced {...} span, else the whole text.
func ExtractJSON(text string) string {
	if m := fencePattern.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return strings.TrimSpace(text)
	}
	if end := balancedEnd(text, start); end > start {
		return text[start : end+1]
	}
	// unbalanced: widest span that still looks like an object
	if end := strings.LastIndexByte(text, '}'); end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// balancedEnd returns the index of the brace closing text[start], skipping braces
// inside JSON strings, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
