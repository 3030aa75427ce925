package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/nutritrackr/internal/nutritrackr/memory"
)

// Validate checks a profile for structural correctness. It returns the first
// problem found.
func Validate(p *Profile) error {
	if p == nil {
		return errors.New("profile must not be nil")
	}
	if p.APIVersion != Version {
		return fmt.Errorf("apiVersion must be %q, got %q", Version, p.APIVersion)
	}
	if strings.TrimSpace(p.Metadata.Name) == "" {
		return errors.New("metadata.name must not be empty")
	}
	if strings.TrimSpace(p.Persona.SystemPrompt) == "" {
		return errors.New("persona.systemPrompt must not be empty")
	}
	if err := validateGeneration(p.Generation); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	if err := validateMemory(p.Memory); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if p.Limits.MessagesPerMinute < 0 {
		return errors.New("limits.messagesPerMinute must not be negative")
	}
	if strings.TrimSpace(p.Messages.Fallback) == "" {
		return errors.New("messages.fallback must not be empty")
	}
	return nil
}

func validateGeneration(g Generation) error {
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", g.Temperature)
	}
	if g.MaxTokens < 0 {
		return fmt.Errorf("maxTokens must not be negative, got %d", g.MaxTokens)
	}
	return nil
}

func validateMemory(m Memory) error {
	if _, ok := memory.OptionsForMode(m.Mode); !ok {
		return fmt.Errorf("mode must be %q or %q, got %q", memory.ModeHybrid, memory.ModeWindow, m.Mode)
	}
	if m.SummaryMaxTokens < 0 {
		return errors.New("summaryMaxTokens must not be negative")
	}
	if m.MaxSessions < 0 {
		return errors.New("maxSessions must not be negative")
	}
	if m.IdleTTL < 0 {
		return errors.New("idleTTL must not be negative")
	}
	return nil
}
