package aicontext

import "github.com/creastat/aicontext/record"

// EstimateTokens estimates the token count for a given text using a Unicode-aware heuristic.
// ASCII characters (English, numbers, punctuation) are weighted at ~4 per token.
// Non-ASCII characters (CJK, Cyrillic, Arabic, Emoji, etc.) are weighted at ~1 per token.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4 // conservative for CJK and friends
		}
	}
	return (weight + 3) / 4
}

// messageTokens prefers the count recorded by the generation model.
func messageTokens(msg record.Message) int {
	if msg.Metadata.TokenCount > 0 {
		return msg.Metadata.TokenCount
	}
	return EstimateTokens(msg.Content)
}
