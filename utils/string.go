// Package utils provides small byte and string helpers shared by the wire
// codec and the equation parser.
package utils

import (
	"strings"
	"unicode"
)

// StripWhitespace returns s with every Unicode whitespace character removed,
// wherever it occurs.
//
// Parameters:
//   - s: The string to clean
//
// Returns:
//   - s without any whitespace; s itself if it contained none
func StripWhitespace(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) == -1 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// TrimLineEnding removes a single trailing "\n" or "\r\n" from line.
//
// Parameters:
//   - line: A line as read from a console or text stream
//
// Returns:
//   - The line without its terminator
func TrimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
