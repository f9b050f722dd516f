// Package utils provides the shared logging and text helpers.
package utils

// Truncate shortens s to at most max runes and appends "..." when anything
// was cut, keeping multi-byte characters at the boundary intact. Non-positive
// max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
