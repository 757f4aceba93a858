package util

import "strings"

// CountWords counts whitespace-separated words. Context budgets are measured
// in these words, not model tokens.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
