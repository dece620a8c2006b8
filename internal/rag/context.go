package rag

import (
	"strings"
	"unicode/utf8"
)

// tokenCharRatio approximates tokens from byte length. Crude but stable and
// offline; exact tokenization would tie the budget to a specific model.
const tokenCharRatio = 4

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return len(text) / tokenCharRatio
}

// Snippet returns at most max bytes of s, cut on a rune boundary so a
// multi-byte character is never split.
func Snippet(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// AssembleContext concatenates result contents highest-score-first into a
// context block of at most budget estimated tokens, separators included.
// When the next document would overflow the budget it is truncated to the
// remaining allowance rather than dropped, so the budget boundary never
// silently discards the best partial match. Documents after the truncated
// one are skipped.
func AssembleContext(results []Result, budget int) string {
	if budget <= 0 || len(results) == 0 {
		return ""
	}
	charBudget := budget * tokenCharRatio

	var b strings.Builder
	for _, res := range results {
		content := res.Document.Content
		if content == "" {
			continue
		}
		sep := 0
		if b.Len() > 0 {
			sep = len("\n\n")
		}
		remaining := charBudget - b.Len() - sep
		if remaining <= 0 {
			break
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		if len(content) <= remaining {
			b.WriteString(content)
			continue
		}
		b.WriteString(Snippet(content, remaining))
		break
	}
	return b.String()
}
