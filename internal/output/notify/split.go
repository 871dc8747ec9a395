package notify

import (
	"strings"
	"unicode/utf8"
)

// SplitText splits text into chunks of at most limit runes, preferring to
// break at paragraph and line boundaries. Separators stay inside the
// preceding chunk, so concatenating the chunks reproduces the input exactly.
// The caption templates keep HTML tags within single lines, so line-boundary
// splits never orphan a tag.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string

	remaining := text
	for utf8.RuneCountInString(remaining) > limit {
		cut := findSplit(remaining, limit)
		parts = append(parts, remaining[:cut])
		remaining = remaining[cut:]
	}

	if remaining != "" {
		parts = append(parts, remaining)
	}

	return parts
}

// findSplit returns a byte offset at or under limit runes, breaking after
// the last paragraph break, then the last newline, then mid-line as a last
// resort.
func findSplit(text string, limit int) int {
	window := runePrefix(text, limit)

	if pos := strings.LastIndex(window, "\n\n"); pos > 0 {
		return pos + 2
	}

	if pos := strings.LastIndex(window, "\n"); pos > 0 {
		return pos + 1
	}

	return len(window)
}

// runePrefix returns the longest prefix of s holding at most n runes.
func runePrefix(s string, n int) string {
	count := 0

	for i := range s {
		if count == n {
			return s[:i]
		}

		count++
	}

	return s
}
