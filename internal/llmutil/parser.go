// File: internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
)

// Chat models asked for a bare line of text still like to dress the answer
// up: a markdown code fence, surrounding quotes, or a "Command:" label. The
// helpers here unwrap those so downstream code sees only the payload.

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// codeFenceRegex captures the body of a response that is a single fenced
	// block, tolerating an optional language tag after the opening fence.
	codeFenceRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60$")

	// labelRegex matches a leading "Command:"/"Enhanced command:" style label.
	labelRegex = regexp.MustCompile(`(?i)^(?:enhanced\s+)?command\s*:\s*`)
)

// CleanResponse normalizes a short plain-text model answer: it trims
// whitespace, unwraps one markdown code fence, drops a leading command
// label, and peels matching quote pairs. The empty string stays empty, so
// callers can keep their emptiness checks.
func CleanResponse(response string) string {
	s := strings.TrimSpace(response)

	if m := codeFenceRegex.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	s = labelRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') ||
			(first == '\'' && last == '\'') ||
			(first == '\x60' && last == '\x60') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}

// FirstLine cuts a response down to its first non-empty line. Useful when a
// model appends an unrequested explanation below the answer.
func FirstLine(response string) string {
	for _, line := range strings.Split(response, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
