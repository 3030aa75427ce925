package memory

import (
	"log/slog"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// CountTokens counts tokens with the cl100k_base BPE codec. When the codec
// cannot be loaded or fails on the input it falls back to EstimateTokens.
func CountTokens(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			slog.Warn("memory: tokenizer unavailable, using estimate", "err", err)
			return
		}
		codec = c
	})
	if codec == nil {
		return EstimateTokens(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return EstimateTokens(text)
	}
	return len(ids)
}

// EstimateTokens is the ~4 characters per token English heuristic.
func EstimateTokens(text string) int {
	const charsPerToken = 4
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// turnsTokens sums the token cost of turns, with a small per-turn overhead
// for the role framing.
func turnsTokens(count TokenCounter, turns []Turn) int {
	const perTurnOverhead = 4
	total := 0
	for _, t := range turns {
		total += count(t.Text) + perTurnOverhead
	}
	return total
}
