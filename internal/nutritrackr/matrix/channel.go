// Package matrix exposes the responder in Matrix rooms through mautrix-go.
//
// Every (room, sender) pair is its own conversation: the session key is
// "<roomID>:<senderID>", so two people in the same room keep separate
// memories.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/nutritrackr/common/trace"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/bot"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/observability"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 5 * time.Minute
	handleTimeout  = 2 * time.Minute
)

// Config holds the Matrix connection parameters.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start.
	Rooms []string
}

// Enabled reports whether enough is configured to connect.
func (c Config) Enabled() bool {
	return c.Homeserver != "" && c.UserID != "" && c.AccessToken != ""
}

// Responder is the part of bot.Responder the channel needs.
type Responder interface {
	Respond(ctx context.Context, sessionKey, userText string) (string, error)
	ResetSession(ctx context.Context, sessionKey string) error
}

type textSender interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
}

// Options carries the optional collaborators of a Channel.
type Options struct {
	Replies bot.Replies
	Limiter *bot.RateLimiter
	Events  bot.EventRecorder
	Logger  *slog.Logger
}

// Channel answers Matrix room messages with the responder.
type Channel struct {
	cfg       Config
	mxc       *mautrix.Client
	send      textSender
	responder Responder
	opts      Options
	logger    *slog.Logger
	startedAt time.Time
}

// New creates the channel but does not connect yet.
func New(cfg Config, responder Responder, opts Options) (*Channel, error) {
	if !cfg.Enabled() {
		return nil, errors.New("matrix: homeserver, user ID and access token are required")
	}
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	c := newChannel(cfg, responder, opts, mxc)
	c.mxc = mxc
	return c, nil
}

func newChannel(cfg Config, responder Responder, opts Options, send textSender) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		cfg:       cfg,
		send:      send,
		responder: responder,
		opts:      opts,
		logger:    logger.With("channel", "matrix"),
		startedAt: time.Now(),
	}
}

// SessionKey is the conversation key for sender in room.
func SessionKey(room id.RoomID, sender id.UserID) string {
	return string(room) + ":" + string(sender)
}

// Run joins the configured rooms and syncs until ctx is done, reconnecting
// with exponential back-off.
func (c *Channel) Run(ctx context.Context) error {
	c.logger.Warn("matrix: E2EE is not enabled; messages are in plaintext")

	syncer, ok := c.mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		c.onMessage(ctx, evt)
	})

	for _, room := range c.cfg.Rooms {
		if _, err := c.mxc.JoinRoomByID(ctx, id.RoomID(room)); err != nil {
			// mautrix errors even when already a member.
			c.logger.Info("matrix: join room result", "room", room, "err", err)
		}
	}

	backoff := initialBackoff
	for {
		err := c.mxc.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = initialBackoff
			continue
		}
		c.logger.Error("matrix: sync error; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Channel) onMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.cfg.UserID) {
		return
	}
	// Backlog delivered by the first sync is not answered.
	if evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(c.startedAt) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	c.handleMessage(ctx, evt.RoomID, evt.Sender, msg.Body)
}

// handleMessage answers one text message and posts the reply in the room.
func (c *Channel) handleMessage(ctx context.Context, room id.RoomID, sender id.UserID, body string) {
	ctx, cancel := context.WithTimeout(trace.Ensure(ctx), handleTimeout)
	defer cancel()

	key := SessionKey(room, sender)
	log := observability.WithTrace(ctx, c.logger).With("room", room, "sender", sender)

	var reply string
	switch {
	case strings.TrimSpace(body) == "":
		return

	case bot.IsResetCommand(body):
		if err := c.responder.ResetSession(ctx, key); err != nil {
			log.Error("matrix: reset failed", "err", err)
			return
		}
		reply = c.opts.Replies.Reset

	case c.opts.Limiter != nil && !c.opts.Limiter.Allow(key):
		log.Info("matrix: sender rate limited")
		c.record(ctx, key, bot.EventRateLimited, "")
		reply = c.opts.Replies.RateLimited

	default:
		var err error
		reply, err = c.responder.Respond(ctx, key, body)
		if err != nil {
			log.Warn("matrix: respond failed, sending fallback", "err", err)
			reply = c.opts.Replies.Fallback
		}
	}

	if reply == "" {
		return
	}
	if _, err := c.send.SendText(ctx, room, reply); err != nil {
		log.Error("matrix: failed to send reply", "err", err)
		c.record(ctx, key, bot.EventDeliveryFailed, err.Error())
	}
}

func (c *Channel) record(ctx context.Context, key, kind, detail string) {
	if c.opts.Events != nil {
		c.opts.Events.Record(ctx, key, kind, detail)
	}
}
