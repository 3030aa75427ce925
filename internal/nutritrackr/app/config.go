package app

import (
	"errors"
	"time"

	"github.com/bdobrica/nutritrackr/common/environment"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/llm"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/matrix"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/whatsapp"
)

// Config is the process configuration, read from the environment.
type Config struct {
	LLM      llm.Config
	WhatsApp WhatsAppConfig
	Matrix   matrix.Config

	// HTTPAddr is where the webhook and health endpoints listen.
	HTTPAddr string
	// DatabasePath is the SQLite event log. Empty disables the log.
	DatabasePath string
	// EventRetention prunes older events. Zero keeps everything.
	EventRetention time.Duration
	// ProfilePath selects a bot profile file; empty uses the embedded one.
	ProfilePath string

	// SessionMax, SessionIdleTTL and SenderRateLimit override the profile
	// when positive.
	SessionMax      int
	SessionIdleTTL  time.Duration
	SenderRateLimit int

	LogLevel  string
	LogFormat string
	LogFile   string
}

// WhatsAppConfig holds the Cloud API credentials.
type WhatsAppConfig struct {
	Token       string
	PhoneID     string
	VerifyToken string
	AppSecret   string
	APIBase     string
}

// Enabled reports whether outbound WhatsApp messages can be sent.
func (c WhatsAppConfig) Enabled() bool {
	return c.Token != "" && c.PhoneID != ""
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		LLM: llm.Config{
			APIKey:       environment.First("GOOGLE_API_KEY", "LLM_API_KEY"),
			BaseURL:      environment.StringOr("LLM_BASE_URL", llm.DefaultBaseURL),
			Model:        environment.StringOr("LLM_MODEL", ""),
			SummaryModel: environment.StringOr("SUMMARY_MODEL", ""),
		},
		WhatsApp: WhatsAppConfig{
			Token:       environment.StringOr("WHATSAPP_TOKEN", ""),
			PhoneID:     environment.StringOr("PHONE_ID", ""),
			VerifyToken: environment.StringOr("VERIFY_TOKEN", ""),
			AppSecret:   environment.StringOr("WHATSAPP_APP_SECRET", ""),
			APIBase:     environment.StringOr("WHATSAPP_API_BASE", whatsapp.DefaultAPIBase),
		},
		Matrix: matrix.Config{
			Homeserver:  environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:      environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken: environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", nil),
		},
		HTTPAddr:        environment.StringOr("HTTP_ADDR", ":8000"),
		DatabasePath:    environment.StringOr("DATABASE_PATH", "./nutritrackr.db"),
		EventRetention:  environment.DurationOr("EVENT_RETENTION", 30*24*time.Hour),
		ProfilePath:     environment.StringOr("PROFILE_PATH", ""),
		SessionMax:      environment.IntOr("SESSION_MAX", 0),
		SessionIdleTTL:  environment.DurationOr("SESSION_IDLE_TTL", 0),
		SenderRateLimit: environment.IntOr("SENDER_RATE_LIMIT", 0),
		LogLevel:        environment.StringOr("LOG_LEVEL", "info"),
		LogFormat:       environment.StringOr("LOG_FORMAT", "text"),
		LogFile:         environment.StringOr("LOG_FILE", ""),
	}
}

// Validate reports missing settings. The server needs an LLM key and at
// least one channel; the local chat only needs the key.
func (c *Config) Validate(serve bool) error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("GOOGLE_API_KEY (or LLM_API_KEY) is required"))
	}
	if serve {
		if !c.WhatsApp.Enabled() && !c.Matrix.Enabled() {
			errs = append(errs, errors.New("configure WhatsApp (WHATSAPP_TOKEN, PHONE_ID) or Matrix (MATRIX_HOMESERVER, MATRIX_USER_ID, MATRIX_ACCESS_TOKEN)"))
		}
		if c.WhatsApp.Enabled() && c.WhatsApp.VerifyToken == "" {
			errs = append(errs, errors.New("VERIFY_TOKEN is required with WhatsApp"))
		}
		if c.HTTPAddr == "" {
			errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
		}
	}
	return errors.Join(errs...)
}
