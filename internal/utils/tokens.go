package utils

// Token estimates use the rough 1 token ~= 4 characters rule; no provider
// tokenizer is consulted.

// CountTokens estimates the token count of text. Non-empty text counts as at least 1.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if n := len([]rune(text)) / 4; n > 0 {
		return n
	}
	return 1
}

// TokenBreakdown estimates tokens per labeled section.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
