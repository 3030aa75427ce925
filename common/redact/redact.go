// Package redact strips sensitive values from text before it reaches logs or
// the event store.
//
// Two kinds of data need care here: credentials (WhatsApp access token, LLM
// API key, webhook app secret) and end-user identifiers, because the session
// key of a WhatsApp conversation is the user's phone number.
package redact

import (
	"strings"
	"unicode"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are ignored so that common
// substrings are not blanked out.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Phone masks all but the last four digits of a phone-number-like session
// key, e.g. "2348012345678" → "*********5678". Keys that contain anything
// other than digits and a leading '+' (Matrix room/user pairs, REPL keys)
// are returned unchanged.
func Phone(key string) string {
	digits := strings.TrimPrefix(key, "+")
	if len(digits) <= 4 {
		return key
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return key
		}
	}
	prefix := key[:len(key)-len(digits)]
	return prefix + strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
