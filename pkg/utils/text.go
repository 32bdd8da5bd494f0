// Package utils provides shared helpers for text handling and logging.
package utils

import "unicode/utf8"

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Truncate shortens s to at most maxLen runes, ending in Ellipsis when anything was cut.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= len(Ellipsis) {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-len(Ellipsis)]) + Ellipsis
}

// IsTruncated reports whether Truncate would change s.
func IsTruncated(s string, maxLen int) bool {
	return maxLen > 0 && utf8.RuneCountInString(s) > maxLen
}
