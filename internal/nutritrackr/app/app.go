// Package app wires NutriTrackr together: configuration, the bot profile,
// session memory, the LLM client, the event log and the WhatsApp and Matrix
// channels.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/nutritrackr/internal/nutritrackr/bot"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/llm"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/matrix"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/memory"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/profile"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/store"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/whatsapp"
)

const maintenanceInterval = time.Hour

// Core is the channel-independent part of the bot, shared by the server and
// the local chat.
type Core struct {
	Profile   *profile.Profile
	LLM       *llm.Client
	Registry  *memory.Registry
	Responder *bot.Responder
	Limiter   *bot.RateLimiter
	// Store is nil when the event log is disabled.
	Store *store.Store
}

// NewCore builds the responder stack for cfg.
func NewCore(cfg *Config) (*Core, error) {
	prof, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	slog.Info("app: profile loaded", "name", prof.Metadata.Name, "memory_mode", prof.Memory.Mode)

	var st *store.Store
	if cfg.DatabasePath != "" {
		slog.Info("app: opening event log", "path", cfg.DatabasePath)
		if st, err = store.New(cfg.DatabasePath); err != nil {
			return nil, err
		}
	}

	llmCfg := cfg.LLM
	if llmCfg.Model == "" {
		llmCfg.Model = prof.Generation.Model
	}
	llmCfg.Temperature = prof.Generation.Temperature
	llmCfg.MaxTokens = prof.Generation.MaxTokens
	client := llm.New(llmCfg)

	var events bot.EventRecorder
	if st != nil {
		events = st
	}

	regCfg := memory.RegistryConfig{
		MaxSessions: positiveOr(cfg.SessionMax, prof.Memory.MaxSessions),
		IdleTTL:     positiveOr(cfg.SessionIdleTTL, prof.Memory.IdleTTL),
		Memory:      prof.MemoryOptions(),
		Condenser:   client,
	}
	if events != nil {
		regCfg.OnCreate = func(s *memory.Session) {
			events.Record(context.Background(), s.Key, bot.EventSessionCreated, "")
		}
		regCfg.OnEvict = func(s *memory.Session) {
			events.Record(context.Background(), s.Key, bot.EventSessionEvicted, "")
		}
	}
	registry := memory.NewRegistry(regCfg)

	responder, err := bot.NewResponder(bot.Config{
		Registry:     registry,
		Generator:    client,
		SystemPrompt: prof.Persona.SystemPrompt,
		Events:       events,
	})
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, err
	}

	return &Core{
		Profile:   prof,
		LLM:       client,
		Registry:  registry,
		Responder: responder,
		Limiter:   bot.NewRateLimiter(positiveOr(cfg.SenderRateLimit, prof.Limits.MessagesPerMinute), time.Minute),
		Store:     st,
	}, nil
}

// Replies returns the profile's canned messages.
func (c *Core) Replies() bot.Replies {
	m := c.Profile.Messages
	return bot.Replies{Fallback: m.Fallback, RateLimited: m.RateLimited, Reset: m.Reset}
}

// Sessions implements StatusSource.
func (c *Core) Sessions() int { return c.Registry.Len() }

// EventCounts implements StatusSource.
func (c *Core) EventCounts(ctx context.Context) (map[string]int, error) {
	if c.Store == nil {
		return nil, errors.New("event log disabled")
	}
	return c.Store.CountEvents(ctx)
}

// Close releases the event log.
func (c *Core) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// App is the long-running server.
type App struct {
	cfg     *Config
	core    *Core
	http    *HealthServer
	webhook *whatsapp.Webhook
	matrix  *matrix.Channel
}

// New builds the server for cfg.
func New(cfg *Config) (*App, error) {
	core, err := NewCore(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{cfg: cfg, core: core, http: NewHealthServer(cfg.HTTPAddr, core)}

	var events bot.EventRecorder
	if core.Store != nil {
		events = core.Store
	}

	if cfg.WhatsApp.Enabled() {
		sender := whatsapp.NewSender(whatsapp.SenderConfig{
			Token:   cfg.WhatsApp.Token,
			PhoneID: cfg.WhatsApp.PhoneID,
			APIBase: cfg.WhatsApp.APIBase,
		})
		a.webhook = whatsapp.NewWebhook(whatsapp.WebhookConfig{
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
			Responder:   core.Responder,
			Sender:      sender,
			Replies:     core.Replies(),
			Limiter:     core.Limiter,
			Events:      events,
		})
		a.webhook.RegisterRoutes(a.http)
		if cfg.WhatsApp.AppSecret == "" {
			slog.Warn("app: WHATSAPP_APP_SECRET not set; webhook signatures are not checked")
		}
		slog.Info("app: WhatsApp channel ready", "api_base", cfg.WhatsApp.APIBase)
	}

	if cfg.Matrix.Enabled() {
		ch, err := matrix.New(cfg.Matrix, core.Responder, matrix.Options{
			Replies: core.Replies(),
			Limiter: core.Limiter,
			Events:  events,
		})
		if err != nil {
			core.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.matrix = ch
		slog.Info("app: Matrix channel ready", "homeserver", cfg.Matrix.Homeserver, "rooms", len(cfg.Matrix.Rooms))
	}

	return a, nil
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.http.Serve(ctx) })
	if a.matrix != nil {
		g.Go(func() error { return a.matrix.Run(ctx) })
	}
	g.Go(func() error {
		a.maintain(ctx)
		return nil
	})

	err := g.Wait()
	if a.webhook != nil {
		a.webhook.Wait()
	}
	return err
}

// Close releases resources held by the app.
func (a *App) Close() error { return a.core.Close() }

// maintain periodically forgets idle rate-limit entries and prunes the event
// log.
func (a *App) maintain(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		swept := a.core.Limiter.Sweep()
		var pruned int64
		if a.core.Store != nil && a.cfg.EventRetention > 0 {
			n, err := a.core.Store.PruneEvents(ctx, time.Now().Add(-a.cfg.EventRetention))
			if err != nil {
				slog.Warn("app: prune events failed", "err", err)
			}
			pruned = n
		}
		slog.Debug("app: maintenance", "sessions", a.core.Sessions(), "senders_swept", swept, "events_pruned", pruned)
	}
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
