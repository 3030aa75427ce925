// Package llm talks to an OpenAI-compatible chat completions endpoint. The
// same client generates replies for the responder and condenses conversation
// history for the summary store.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bdobrica/nutritrackr/internal/nutritrackr/memory"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel       = "gemini-2.5-flash-lite"
	DefaultTemperature = 0.4
	DefaultMaxTokens   = 512
	defaultTimeout     = 30 * time.Second

	condenseMaxTokens = 256

	condensePrompt = `Progressively summarise the lines of conversation provided, adding onto the previous summary and returning a new summary.
Keep the user's goals, diet type, ingredients and any plans already agreed. Reply with the summary only.`
)

// ErrEmptyReply is returned when the model answers with no content.
var ErrEmptyReply = errors.New("llm: empty reply")

// Config configures the client.
type Config struct {
	APIKey string

	// BaseURL overrides the endpoint. Defaults to Gemini's OpenAI-compatible
	// API.
	BaseURL string

	// Model generates replies. SummaryModel condenses history and defaults to
	// Model.
	Model        string
	SummaryModel string

	Temperature float32
	MaxTokens   int

	// Timeout is the per-request HTTP timeout. Defaults to 30 s.
	Timeout time.Duration
}

// Client implements bot.Generator and memory.Condenser. It is safe for
// concurrent use.
type Client struct {
	cfg Config
	api *openai.Client
}

// New returns a client for cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = cfg.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{cfg: cfg, api: openai.NewClientWithConfig(oc)}
}

// Model returns the reply model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generate produces the assistant's reply to userText given the system
// prompt and the conversation so far. Failures wrap
// memory.ErrCapabilityUnavailable.
func (c *Client) Generate(ctx context.Context, systemPrompt string, history []memory.Turn, userText string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, t := range history {
		msgs = append(msgs, toMessage(t))
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})

	reply, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w: %w", memory.ErrCapabilityUnavailable, err)
	}
	return reply, nil
}

// Condense folds turns into priorSummary and returns the new summary.
func (c *Client) Condense(ctx context.Context, priorSummary string, turns []memory.Turn) (string, error) {
	if len(turns) == 0 {
		return priorSummary, nil
	}

	var b strings.Builder
	b.WriteString("Current summary:\n")
	if priorSummary == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(priorSummary)
	}
	b.WriteString("\n\nNew lines of conversation:\n")
	b.WriteString(transcript(turns))

	reply, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.SummaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: condensePrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
		Temperature: 0,
		MaxTokens:   condenseMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: condense: %w: %w", memory.ErrCapabilityUnavailable, err)
	}
	return reply, nil
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("rate limit (HTTP 429): %w", err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned: %w", ErrEmptyReply)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

func toMessage(t memory.Turn) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	switch t.Role {
	case memory.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case memory.RoleSystem:
		role = openai.ChatMessageRoleSystem
	}
	return openai.ChatCompletionMessage{Role: role, Content: t.Text}
}

func transcript(turns []memory.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := "Human"
		if t.Role == memory.RoleAssistant {
			name = "AI"
		}
		fmt.Fprintf(&b, "%s: %s", name, t.Text)
	}
	return b.String()
}

var _ memory.Condenser = (*Client)(nil)
