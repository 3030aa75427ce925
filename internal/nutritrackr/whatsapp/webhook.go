package whatsapp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bdobrica/nutritrackr/common/redact"
	"github.com/bdobrica/nutritrackr/common/trace"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/bot"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/observability"
)

const (
	maxBodyBytes = 1 << 20

	defaultHandleTimeout = 2 * time.Minute

	// Cloud API redelivers unacknowledged messages; remembering recent IDs
	// keeps a redelivery from being answered twice.
	seenMessages   = 4096
	seenMessageTTL = 30 * time.Minute
)

// Responder is the part of bot.Responder the webhook needs.
type Responder interface {
	Respond(ctx context.Context, sessionKey, userText string) (string, error)
	ResetSession(ctx context.Context, sessionKey string) error
}

// MessageSender delivers a text reply to a WhatsApp user.
type MessageSender interface {
	Send(ctx context.Context, to, body string) error
}

// WebhookConfig wires a Webhook.
type WebhookConfig struct {
	// VerifyToken answers the subscription handshake.
	VerifyToken string
	// AppSecret, when set, requires every delivery to carry a valid
	// X-Hub-Signature-256.
	AppSecret string

	Responder Responder
	Sender    MessageSender
	Replies   bot.Replies

	// Limiter and Events are optional.
	Limiter *bot.RateLimiter
	Events  bot.EventRecorder

	// HandleTimeout bounds the generate-and-send work for one message.
	HandleTimeout time.Duration
	Logger        *slog.Logger
}

// Webhook receives Cloud API deliveries. Each text message is answered in
// the background so the provider gets its 200 immediately.
type Webhook struct {
	cfg    WebhookConfig
	logger *slog.Logger
	seen   *expirable.LRU[string, struct{}]
	wg     sync.WaitGroup
}

// NewWebhook returns a Webhook for cfg.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{
		cfg:    cfg,
		logger: cfg.Logger,
		seen:   expirable.NewLRU[string, struct{}](seenMessages, nil, seenMessageTTL),
	}
}

// RouteRegistrar is satisfied by *http.ServeMux and app.HealthServer.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterRoutes mounts the webhook on /webhook and on the root path.
func (w *Webhook) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/webhook", w)
	r.Handle("/", w)
}

// ServeHTTP answers the verification handshake (GET) and deliveries (POST).
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/webhook" {
		http.NotFound(rw, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.handleVerify(rw, r)
	case http.MethodPost:
		w.handleDelivery(rw, r)
	default:
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Wait blocks until every in-flight message has been handled.
func (w *Webhook) Wait() { w.wg.Wait() }

func (w *Webhook) handleVerify(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if w.cfg.VerifyToken == "" ||
		q.Get("hub.mode") != "subscribe" ||
		q.Get("hub.verify_token") != w.cfg.VerifyToken {
		w.logger.Info("whatsapp: verification rejected", "mode", q.Get("hub.mode"))
		http.Error(rw, "verification failed", http.StatusForbidden)
		return
	}
	w.logger.Info("whatsapp: webhook verified")
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, q.Get("hub.challenge"))
}

func (w *Webhook) handleDelivery(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "failed to read request body", http.StatusBadRequest)
		return
	}

	if w.cfg.AppSecret != "" {
		if err := verifySignature([]byte(w.cfg.AppSecret), body, r.Header.Get(SignatureHeader)); err != nil {
			w.logger.Info("whatsapp: signature check failed", "err", err)
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	msgs, skipped, err := parseDelivery(body)
	if err != nil {
		w.logger.Info("whatsapp: rejected delivery", "err", err)
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}
	if skipped > 0 {
		w.logger.Debug("whatsapp: skipped non-text messages", "count", skipped)
	}

	base := context.WithoutCancel(r.Context())
	for _, m := range msgs {
		if m.ID != "" {
			if w.seen.Contains(m.ID) {
				w.logger.Debug("whatsapp: duplicate delivery ignored", "message_id", m.ID)
				continue
			}
			w.seen.Add(m.ID, struct{}{})
		}
		ctx, cancel := context.WithTimeout(trace.WithTraceID(base, trace.GenerateID()), w.cfg.HandleTimeout)
		w.wg.Add(1)
		go func(m InboundMessage) {
			defer w.wg.Done()
			defer cancel()
			w.handleMessage(ctx, m)
		}(m)
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, `{"status":"ok"}`)
}

// handleMessage answers one inbound message and sends the reply.
func (w *Webhook) handleMessage(ctx context.Context, m InboundMessage) {
	log := observability.WithTrace(ctx, w.logger).With("session", redact.Phone(m.From))
	log.Info("whatsapp: message received", "message_id", m.ID, "len", len(m.Text))

	var reply string
	switch {
	case strings.TrimSpace(m.Text) == "":
		log.Debug("whatsapp: empty message ignored")
		return

	case bot.IsResetCommand(m.Text):
		if err := w.cfg.Responder.ResetSession(ctx, m.From); err != nil {
			log.Error("whatsapp: reset failed", "err", err)
			return
		}
		reply = w.cfg.Replies.Reset

	case w.cfg.Limiter != nil && !w.cfg.Limiter.Allow(m.From):
		log.Info("whatsapp: sender rate limited")
		w.record(ctx, m.From, bot.EventRateLimited, "")
		reply = w.cfg.Replies.RateLimited

	default:
		var err error
		reply, err = w.cfg.Responder.Respond(ctx, m.From, m.Text)
		if err != nil {
			log.Warn("whatsapp: respond failed, sending fallback", "err", err)
			reply = w.cfg.Replies.Fallback
		}
	}

	if reply == "" {
		return
	}
	if err := w.cfg.Sender.Send(ctx, m.From, reply); err != nil {
		var apiErr *APIError
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		log.Error("whatsapp: failed to send reply", "status", status, "err", err)
		w.record(ctx, m.From, bot.EventDeliveryFailed, err.Error())
	}
}

func (w *Webhook) record(ctx context.Context, key, kind, detail string) {
	if w.cfg.Events != nil {
		w.cfg.Events.Record(ctx, key, kind, detail)
	}
}
