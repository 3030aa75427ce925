package matrix

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/nutritrackr/internal/nutritrackr/bot"
)

type fakeResponder struct {
	err    error
	keys   []string
	resets []string
}

func (f *fakeResponder) Respond(_ context.Context, key, text string) (string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", f.err
	}
	return "reply: " + text, nil
}

func (f *fakeResponder) ResetSession(_ context.Context, key string) error {
	f.resets = append(f.resets, key)
	return nil
}

type sent struct {
	room id.RoomID
	text string
}

type fakeSender struct {
	err  error
	sent []sent
}

func (f *fakeSender) SendText(_ context.Context, room id.RoomID, text string) (*mautrix.RespSendEvent, error) {
	f.sent = append(f.sent, sent{room, text})
	return &mautrix.RespSendEvent{}, f.err
}

const (
	room  = id.RoomID("!kitchen:example.org")
	alice = id.UserID("@alice:example.org")
	me    = "@nutritrackr:example.org"
)

var replies = bot.Replies{Fallback: "fallback", RateLimited: "slow down", Reset: "fresh start"}

func textEvent(sender id.UserID, body string, ts time.Time) *event.Event {
	return &event.Event{
		Sender:    sender,
		RoomID:    room,
		Type:      event.EventMessage,
		Timestamp: ts.UnixMilli(),
		Content:   event.Content{Parsed: &event.MessageEventContent{MsgType: event.MsgText, Body: body}},
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{Homeserver: "https://matrix.example.org"}, &fakeResponder{}, Options{})
	assert.Error(t, err)
	assert.False(t, Config{}.Enabled())
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "!kitchen:example.org:@alice:example.org", SessionKey(room, alice))
}

func TestOnMessage_Responds(t *testing.T) {
	resp := &fakeResponder{}
	send := &fakeSender{}
	c := newChannel(Config{UserID: me}, resp, Options{Replies: replies}, send)

	c.onMessage(context.Background(), textEvent(alice, "3 recipes with yam", time.Now().Add(time.Second)))

	assert.Equal(t, []string{SessionKey(room, alice)}, resp.keys)
	assert.Equal(t, []sent{{room, "reply: 3 recipes with yam"}}, send.sent)
}

func TestOnMessage_Ignored(t *testing.T) {
	resp := &fakeResponder{}
	send := &fakeSender{}
	c := newChannel(Config{UserID: me}, resp, Options{Replies: replies}, send)
	future := time.Now().Add(time.Second)

	c.onMessage(context.Background(), textEvent(id.UserID(me), "my own message", future))
	c.onMessage(context.Background(), textEvent(alice, "backlog", time.Now().Add(-time.Hour)))

	notice := textEvent(alice, "notice", future)
	notice.Content.Parsed = &event.MessageEventContent{MsgType: event.MsgNotice, Body: "notice"}
	c.onMessage(context.Background(), notice)

	assert.Empty(t, resp.keys)
	assert.Empty(t, send.sent)
}

func TestHandleMessage_ResetFallbackAndLimit(t *testing.T) {
	ctx := context.Background()
	resp := &fakeResponder{}
	send := &fakeSender{}
	c := newChannel(Config{UserID: me}, resp, Options{
		Replies: replies,
		Limiter: bot.NewRateLimiter(1, time.Minute),
	}, send)

	c.handleMessage(ctx, room, alice, "/reset")
	require.Equal(t, []string{SessionKey(room, alice)}, resp.resets)

	resp.err = errors.New("model down")
	c.handleMessage(ctx, room, alice, "hello")
	c.handleMessage(ctx, room, alice, "hello again")

	texts := make([]string, 0, len(send.sent))
	for _, s := range send.sent {
		texts = append(texts, s.text)
	}
	assert.Equal(t, []string{"fresh start", "fallback", "slow down"}, texts)
}
