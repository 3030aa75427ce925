package memory

import (
	"context"
	"fmt"
	"strings"
)

// NoopCondenser is used when no LLM is configured. It keeps the last few
// "role: text" lines as the summary, which is crude but keeps context bounded
// without a network call.
type NoopCondenser struct{}

const noopCondenserLines = 3

// Condense appends the pruned turns to the prior summary and keeps only the
// trailing lines.
func (NoopCondenser) Condense(_ context.Context, priorSummary string, turns []Turn) (string, error) {
	var lines []string
	if priorSummary != "" {
		lines = strings.Split(priorSummary, "\n")
	}
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Text))
	}
	if len(lines) > noopCondenserLines {
		lines = lines[len(lines)-noopCondenserLines:]
	}
	return strings.Join(lines, "\n"), nil
}

var _ Condenser = NoopCondenser{}
