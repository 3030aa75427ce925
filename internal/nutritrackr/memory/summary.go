package memory

import (
	"context"
	"fmt"
	"slices"
)

// DefaultSummaryMaxTokens bounds the verbatim part of the summary store.
const DefaultSummaryMaxTokens = 200

// summaryPrefix introduces the rolling summary when it is materialised as a
// context turn.
const summaryPrefix = "Summary of the conversation so far: "

// Condenser folds turns that no longer fit the summary budget into the
// rolling summary. Implementations usually call an LLM and may be slow or
// fail; they must not retain turns.
type Condenser interface {
	Condense(ctx context.Context, priorSummary string, turns []Turn) (string, error)
}

// CondenserFunc adapts a function to Condenser.
type CondenserFunc func(ctx context.Context, priorSummary string, turns []Turn) (string, error)

// Condense calls f.
func (f CondenserFunc) Condense(ctx context.Context, priorSummary string, turns []Turn) (string, error) {
	return f(ctx, priorSummary, turns)
}

// SummaryStore is the long-term half of a session's memory. Exchanges saved
// into it stay verbatim while they fit MaxTokens; older ones are pruned and
// condensed into a single rolling summary.
//
// SummaryStore is not safe for concurrent use; Hybrid serialises access.
type SummaryStore struct {
	condenser Condenser
	maxTokens int
	count     TokenCounter

	summary string
	pending []Turn
}

// NewSummaryStore returns an empty store. maxTokens ≤ 0 selects
// DefaultSummaryMaxTokens; a nil counter selects CountTokens.
func NewSummaryStore(c Condenser, maxTokens int, count TokenCounter) *SummaryStore {
	if maxTokens <= 0 {
		maxTokens = DefaultSummaryMaxTokens
	}
	if count == nil {
		count = CountTokens
	}
	return &SummaryStore{condenser: c, maxTokens: maxTokens, count: count}
}

// Save records one user/assistant exchange. When the verbatim buffer goes
// over budget, the oldest turns are condensed into the summary. If the
// condenser fails the store is left exactly as it was and the error wraps
// ErrCapabilityUnavailable.
func (s *SummaryStore) Save(ctx context.Context, user, assistant Turn) error {
	pending := append(slices.Clone(s.pending), user, assistant)

	var pruned []Turn
	for len(pending) > 0 && turnsTokens(s.count, pending) > s.maxTokens {
		pruned = append(pruned, pending[0])
		pending = pending[1:]
	}

	summary := s.summary
	if len(pruned) > 0 {
		if s.condenser == nil {
			return fmt.Errorf("memory: condense summary: %w: no condenser configured", ErrCapabilityUnavailable)
		}
		out, err := s.condenser.Condense(ctx, s.summary, pruned)
		if err != nil {
			return fmt.Errorf("memory: condense summary: %w: %w", ErrCapabilityUnavailable, err)
		}
		summary = out
	}

	s.summary = summary
	s.pending = pending
	return nil
}

// Summary returns the current rolling summary ("" before the first
// condensation).
func (s *SummaryStore) Summary() string { return s.summary }

// Turns materialises the store as context: a system turn carrying the
// summary (when there is one) followed by the verbatim exchanges.
func (s *SummaryStore) Turns() []Turn {
	out := make([]Turn, 0, len(s.pending)+1)
	if s.summary != "" {
		out = append(out, Turn{Role: RoleSystem, Text: summaryPrefix + s.summary})
	}
	return append(out, s.pending...)
}

// Empty reports whether nothing has been saved since the last Reset.
func (s *SummaryStore) Empty() bool {
	return s.summary == "" && len(s.pending) == 0
}

// Reset returns the store to its initial state.
func (s *SummaryStore) Reset() {
	s.summary = ""
	s.pending = nil
}
