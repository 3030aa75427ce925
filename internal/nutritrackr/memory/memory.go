// Package memory implements per-session conversation memory for the chat
// assistant. A session blends a short-term verbatim buffer with a rolling
// long-term summary, and restarts the conversation context when the user
// keeps sending the same message.
//
// The moving parts, leaves first:
//   - IsRepetitive: near-duplicate detection over the last three user messages
//   - SummaryStore: rolling summary fed by a Condenser (usually an LLM call)
//   - Hybrid: the per-session state machine (ingest, context, reset)
//   - Registry: lazily created sessions keyed by an external identifier
package memory

import (
	"fmt"
	"strings"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is only produced when the rolling summary is materialised
	// into context; it is never accepted by Ingest.
	RoleSystem Role = "system"
)

// Turn is one utterance. It is a value type; copies never alias.
type Turn struct {
	Role Role
	Text string
}

// UserTurn is shorthand for Turn{Role: RoleUser, Text: text}.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// AssistantTurn is shorthand for Turn{Role: RoleAssistant, Text: text}.
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// Validate reports ErrMalformedTurn when the role is not user or assistant
// or the text is blank.
func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleAssistant {
		return fmt.Errorf("%w: unsupported role %q", ErrMalformedTurn, t.Role)
	}
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("%w: empty %s text", ErrMalformedTurn, t.Role)
	}
	return nil
}

// lastOfRole returns the most recent turn with the given role, searching
// from the end of turns.
func lastOfRole(turns []Turn, role Role) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == role {
			return turns[i], true
		}
	}
	return Turn{}, false
}
