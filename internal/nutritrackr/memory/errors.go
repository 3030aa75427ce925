package memory

import "errors"

var (
	// ErrMalformedTurn is returned when a turn has no usable role or text.
	ErrMalformedTurn = errors.New("memory: malformed turn")

	// ErrEmptySessionKey is returned when a session is requested with a
	// blank identifier.
	ErrEmptySessionKey = errors.New("memory: empty session key")

	// ErrCapabilityUnavailable wraps failures of the external summarisation
	// or generation capabilities (network errors, API errors, timeouts).
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)
