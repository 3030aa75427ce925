// Package profile defines the bot profile: the YAML document that sets the
// assistant's persona, generation parameters, memory behaviour and the canned
// messages sent to users. A default NutriTrackr profile is embedded.
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/nutritrackr/internal/nutritrackr/memory"
)

// Version is the apiVersion every profile must declare.
const Version = "nutritrackr/v1"

//go:embed default.yaml
var defaultYAML []byte

// Profile is the root of a bot profile document.
type Profile struct {
	APIVersion string     `yaml:"apiVersion"`
	Metadata   Metadata   `yaml:"metadata"`
	Persona    Persona    `yaml:"persona"`
	Generation Generation `yaml:"generation"`
	Memory     Memory     `yaml:"memory"`
	Limits     Limits     `yaml:"limits,omitempty"`
	Messages   Messages   `yaml:"messages"`
}

// Metadata is descriptive only.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Persona holds the system prompt sent ahead of every conversation.
type Persona struct {
	SystemPrompt string `yaml:"systemPrompt"`
}

// Generation configures reply generation. An empty Model defers to the
// LLM_MODEL environment variable.
type Generation struct {
	Model       string  `yaml:"model,omitempty"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// Memory configures per-session conversation memory.
type Memory struct {
	// Mode is "hybrid" (summary plus repetition detection) or "window"
	// (last few turns only).
	Mode             string        `yaml:"mode"`
	SummaryMaxTokens int           `yaml:"summaryMaxTokens,omitempty"`
	MaxSessions      int           `yaml:"maxSessions,omitempty"`
	IdleTTL          time.Duration `yaml:"idleTTL,omitempty"`
}

// Limits bounds how fast a single sender is answered.
type Limits struct {
	MessagesPerMinute int `yaml:"messagesPerMinute,omitempty"`
}

// Messages are the fixed texts the bot sends outside normal replies.
type Messages struct {
	Fallback    string `yaml:"fallback"`
	RateLimited string `yaml:"rateLimited"`
	Reset       string `yaml:"reset"`
}

// Parse decodes and validates a profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile parse: %w", err)
	}
	if err := Validate(&p); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return &p, nil
}

// Default returns the embedded NutriTrackr profile.
func Default() *Profile {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default profile: %v", err))
	}
	return p
}

// Load reads the profile at path, or returns the default when path is empty.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// MemoryOptions returns the memory options selected by the profile.
func (p *Profile) MemoryOptions() memory.Options {
	opts, _ := memory.OptionsForMode(p.Memory.Mode)
	if p.Memory.SummaryMaxTokens > 0 {
		opts.SummaryMaxTokens = p.Memory.SummaryMaxTokens
	}
	return opts
}
