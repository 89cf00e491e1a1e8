// File: internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanResponse(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "PlainText",
			input:    "Open the settings app.",
			expected: "Open the settings app.",
		},
		{
			name:     "SurroundingWhitespace",
			input:    "  \n Open the settings app. \t ",
			expected: "Open the settings app.",
		},
		{
			name:     "DoubleQuoted",
			input:    `"Open the settings app."`,
			expected: "Open the settings app.",
		},
		{
			name:     "SingleQuoted",
			input:    "'Open the settings app.'",
			expected: "Open the settings app.",
		},
		{
			name:     "BacktickWrapped",
			input:    "\x60Open the settings app.\x60",
			expected: "Open the settings app.",
		},
		{
			name:     "CodeFence",
			input:    "\x60\x60\x60\nOpen the settings app.\n\x60\x60\x60",
			expected: "Open the settings app.",
		},
		{
			name:     "CodeFenceWithLanguageTag",
			input:    "\x60\x60\x60text\nOpen the settings app.\n\x60\x60\x60",
			expected: "Open the settings app.",
		},
		{
			name:     "FenceThenQuotes",
			input:    "\x60\x60\x60\n\"Open the settings app.\"\n\x60\x60\x60",
			expected: "Open the settings app.",
		},
		{
			name:     "CommandLabel",
			input:    "Command: Open the settings app.",
			expected: "Open the settings app.",
		},
		{
			name:     "EnhancedCommandLabel",
			input:    "Enhanced Command: Open the settings app.",
			expected: "Open the settings app.",
		},
		{
			name:     "InteriorQuotesSurvive",
			input:    `Open "Notes" and type "hello"`,
			expected: `Open "Notes" and type "hello"`,
		},
		{
			name:     "ApostropheNotStripped",
			input:    "Don't close the window",
			expected: "Don't close the window",
		},
		{
			name:     "UnmatchedQuoteKept",
			input:    `"Open the settings app.`,
			expected: `"Open the settings app.`,
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
		{
			name:     "WhitespaceOnly",
			input:    "   \n\t  ",
			expected: "",
		},
		{
			name:     "FenceMidTextNotUnwrapped",
			input:    "Run \x60\x60\x60ls\x60\x60\x60 in the terminal",
			expected: "Run \x60\x60\x60ls\x60\x60\x60 in the terminal",
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, CleanResponse(tt.input))
		})
	}
}

func TestFirstLine(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"SingleLine", "open the browser", "open the browser"},
		{"TrailingExplanation", "open the browser\n\nThis will launch the default browser.", "open the browser"},
		{"LeadingBlankLines", "\n\n  open the browser", "open the browser"},
		{"Empty", "", ""},
		{"OnlyNewlines", "\n\n\n", ""},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, FirstLine(tt.input))
		})
	}
}
