package bot

import "strings"

// Replies holds the fixed texts a channel sends outside normal replies.
// Empty RateLimited or Reset texts mean nothing is sent in those cases.
type Replies struct {
	Fallback    string
	RateLimited string
	Reset       string
}

// IsResetCommand reports whether text asks to restart the conversation.
func IsResetCommand(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/reset", "reset":
		return true
	}
	return false
}
