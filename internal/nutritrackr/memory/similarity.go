package memory

import "strings"

const (
	// RepetitionWindow is the number of recent user messages compared.
	RepetitionWindow = 3

	// SimilarityThreshold is the Jaccard similarity above which two
	// adjacent user messages count as near-duplicates.
	SimilarityThreshold = 0.70
)

// IsRepetitive reports whether a window of recent user messages looks like
// the user repeating themselves. It only judges full windows of exactly
// RepetitionWindow entries; anything else is not repetitive.
//
// A window is repetitive when all messages are byte-identical, or when every
// adjacent pair has a word-set Jaccard similarity above SimilarityThreshold.
// Pairs whose combined word set is empty are skipped.
func IsRepetitive(window []string) bool {
	if len(window) != RepetitionWindow {
		return false
	}

	identical := true
	for _, s := range window[1:] {
		if s != window[0] {
			identical = false
			break
		}
	}
	if identical {
		return true
	}

	similar := 0
	for i := 0; i < len(window)-1; i++ {
		sim, ok := jaccard(wordSet(window[i]), wordSet(window[i+1]))
		if ok && sim > SimilarityThreshold {
			similar++
		}
	}
	return similar >= RepetitionWindow-1
}

// wordSet splits s on whitespace after case folding and collapses duplicates.
func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard returns |a∩b|/|a∪b|. ok is false when the union is empty.
func jaccard(a, b map[string]struct{}) (sim float64, ok bool) {
	inter := 0
	for w := range a {
		if _, found := b[w]; found {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0, false
	}
	return float64(inter) / float64(union), true
}
