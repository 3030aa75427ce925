package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdobrica/nutritrackr/common/redact"
	"github.com/bdobrica/nutritrackr/common/retry"
)

const (
	// DefaultAPIBase is the Graph API version the Cloud API is served from.
	DefaultAPIBase = "https://graph.facebook.com/v17.0"

	// MaxBodyChars is the longest text body the Cloud API accepts.
	MaxBodyChars = 4096

	defaultSendRate  = 20 // messages per second
	defaultSendBurst = 5
	defaultTimeout   = 15 * time.Second
	maxErrorBody     = 2048
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	// Token is the Cloud API access token.
	Token string
	// PhoneID is the business phone number ID messages are sent from.
	PhoneID string
	// APIBase overrides DefaultAPIBase.
	APIBase string

	// RatePerSecond and Burst shape outbound traffic. Zero selects the
	// defaults.
	RatePerSecond float64
	Burst         int

	Retry      retry.Config
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Sender posts text messages through the Cloud API. It is safe for
// concurrent use.
type Sender struct {
	cfg     SenderConfig
	url     string
	limiter *rate.Limiter
	client  *http.Client
	logger  *slog.Logger
}

// NewSender returns a Sender for cfg.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultSendRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultSendBurst
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sender{
		cfg:     cfg,
		url:     strings.TrimRight(cfg.APIBase, "/") + "/" + cfg.PhoneID + "/messages",
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}
}

type outboundText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type outboundMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             outboundText `json:"text"`
}

// APIError is a non-2xx answer from the Cloud API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Send delivers body to the WhatsApp user to. Bodies longer than
// MaxBodyChars are truncated. Throttling waits honour ctx; 429 and 5xx
// answers are retried.
func (s *Sender) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             outboundText{Body: truncate(body, MaxBodyChars)},
	})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	err = retry.Do(ctx, s.cfg.Retry, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("whatsapp: throttle: %w", err))
		}
		return s.post(ctx, payload)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("whatsapp: message sent", "to", redact.Phone(to))
	return nil
}

func (s *Sender) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("whatsapp: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %s", redact.String(err.Error(), s.cfg.Token))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return apiErr
	}
	return retry.Permanent(apiErr)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
