// Package bot turns one inbound user message into one assistant reply. It
// assembles the session's remembered context, asks the generator for a
// reply and records the exchange back into memory.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/nutritrackr/common/redact"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/memory"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/observability"
)

// Event kinds recorded by the responder and the channels.
const (
	EventSessionCreated   = "session.created"
	EventSessionEvicted   = "session.evicted"
	EventSessionReset     = "session.reset"
	EventRepetitionReset  = "memory.repetition_reset"
	EventFlushFailed      = "memory.flush_failed"
	EventGenerationFailed = "generation.failed"
	EventDeliveryFailed   = "delivery.failed"
	EventRateLimited      = "sender.rate_limited"
)

// Generator produces the assistant's reply from the system prompt, the
// remembered context and the new user message.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []memory.Turn, userText string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt string, history []memory.Turn, userText string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt string, history []memory.Turn, userText string) (string, error) {
	return f(ctx, systemPrompt, history, userText)
}

// EventRecorder receives session events. Implementations must not block for
// long; failures are theirs to log.
type EventRecorder interface {
	Record(ctx context.Context, sessionKey, kind, detail string)
}

// Config wires a Responder.
type Config struct {
	Registry     *memory.Registry
	Generator    Generator
	SystemPrompt string

	// Events is optional.
	Events EventRecorder
	Logger *slog.Logger
}

// Responder answers messages for any number of sessions. Calls for the same
// session key are serialised; distinct sessions proceed in parallel.
type Responder struct {
	registry     *memory.Registry
	gen          Generator
	systemPrompt string
	events       EventRecorder
	logger       *slog.Logger
}

// NewResponder returns a Responder. Registry and Generator are required.
func NewResponder(cfg Config) (*Responder, error) {
	if cfg.Registry == nil {
		return nil, errors.New("bot: registry is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("bot: generator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Responder{
		registry:     cfg.Registry,
		gen:          cfg.Generator,
		systemPrompt: cfg.SystemPrompt,
		events:       cfg.Events,
		logger:       cfg.Logger,
	}, nil
}

// Respond returns the assistant's reply to userText in the session named by
// sessionKey. On generation failure nothing is remembered and the error
// wraps memory.ErrCapabilityUnavailable.
func (r *Responder) Respond(ctx context.Context, sessionKey, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", fmt.Errorf("bot: respond: %w", memory.ErrMalformedTurn)
	}
	sess, err := r.registry.GetOrCreate(sessionKey)
	if err != nil {
		return "", fmt.Errorf("bot: respond: %w", err)
	}
	log := observability.WithTrace(ctx, r.logger).With("session", redact.Phone(sessionKey))

	sess.Lock()
	defer sess.Unlock()

	mem := sess.Memory()
	reply, err := r.gen.Generate(ctx, r.systemPrompt, mem.Context(), userText)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("generator returned an empty reply")
	}
	if err != nil {
		if !errors.Is(err, memory.ErrCapabilityUnavailable) {
			err = fmt.Errorf("%w: %w", memory.ErrCapabilityUnavailable, err)
		}
		log.Warn("bot: generation failed", "err", err)
		r.record(ctx, sessionKey, EventGenerationFailed, err.Error())
		return "", fmt.Errorf("bot: respond: %w", err)
	}

	res, err := mem.Ingest(ctx, memory.UserTurn(userText), memory.AssistantTurn(reply))
	if err != nil {
		return "", fmt.Errorf("bot: respond: %w", err)
	}
	if res.FlushErrors > 0 {
		r.record(ctx, sessionKey, EventFlushFailed, fmt.Sprintf("%d flush attempt(s) failed", res.FlushErrors))
	}
	if res.Reset {
		log.Info("bot: conversation restarted after repetition", "dropped", res.Dropped)
		r.record(ctx, sessionKey, EventRepetitionReset, "")
	}
	log.Debug("bot: replied", "flushes", res.Flushes, "reply_len", len(reply))
	return reply, nil
}

// ResetSession clears the session's memory, keeping only the restart
// announcement and the most recent exchange. The session is created if it
// does not exist yet.
func (r *Responder) ResetSession(ctx context.Context, sessionKey string) error {
	sess, err := r.registry.GetOrCreate(sessionKey)
	if err != nil {
		return fmt.Errorf("bot: reset session: %w", err)
	}
	sess.Lock()
	sess.Memory().Clear()
	sess.Unlock()

	observability.WithTrace(ctx, r.logger).Info("bot: session reset", "session", redact.Phone(sessionKey))
	r.record(ctx, sessionKey, EventSessionReset, "")
	return nil
}

// Sessions returns the number of live sessions.
func (r *Responder) Sessions() int { return r.registry.Len() }

func (r *Responder) record(ctx context.Context, sessionKey, kind, detail string) {
	if r.events != nil {
		r.events.Record(ctx, sessionKey, kind, detail)
	}
}
