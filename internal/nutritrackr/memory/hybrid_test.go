package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testOptions keeps the summary budget generous so flushes never need the
// condenser unless a test asks for it.
func testOptions() Options {
	o := DefaultOptions()
	o.SummaryMaxTokens = 10_000
	o.TokenCounter = EstimateTokens
	return o
}

func ingest(t *testing.T, h *Hybrid, turns ...Turn) IngestResult {
	t.Helper()
	res, err := h.Ingest(context.Background(), turns...)
	require.NoError(t, err)
	return res
}

func TestHybrid_WriteCounterAndFlush(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())

	res := ingest(t, h, UserTurn("I want a meal plan"), AssistantTurn("Here's a plan"))
	assert.Equal(t, 0, res.Flushes)
	assert.Equal(t, 2, h.Stats().WriteCounter)
	assert.False(t, h.Stats().HasSummary)

	res = ingest(t, h, UserTurn("Make it vegan"), AssistantTurn("Here's a vegan plan"))
	assert.Equal(t, 1, res.Flushes)
	assert.Equal(t, 0, h.Stats().WriteCounter)
	assert.True(t, h.Stats().HasSummary)

	// The flushed exchange is the latest one; the short buffer keeps all turns.
	ctxTurns := h.Context()
	require.Len(t, ctxTurns, 6)
	assert.Equal(t, UserTurn("Make it vegan"), ctxTurns[0])
	assert.Equal(t, AssistantTurn("Here's a vegan plan"), ctxTurns[1])
	assert.Equal(t, UserTurn("I want a meal plan"), ctxTurns[2])
}

func TestHybrid_CounterIncrementsPerTurn(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())
	for i := 1; i <= 3; i++ {
		ingest(t, h, AssistantTurn(fmt.Sprintf("tip %d", i)))
		assert.Equal(t, i, h.Stats().WriteCounter)
	}
}

func TestHybrid_FlushWithoutCompleteExchangeResetsCounter(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())

	res := ingest(t, h,
		UserTurn("rice"), UserTurn("beans"), UserTurn("plantain"), UserTurn("eggs"))

	assert.Zero(t, res.Flushes)
	assert.Zero(t, res.FlushErrors)
	assert.Zero(t, h.Stats().WriteCounter)
	assert.False(t, h.Stats().HasSummary)
	assert.Len(t, h.Buffer(), 4)
}

func TestHybrid_FlushFailureRetriesOnNextTurn(t *testing.T) {
	c := &fakeCondenser{err: errors.New("quota exceeded")}
	opts := testOptions()
	opts.SummaryMaxTokens = 1 // every save needs the condenser
	h := NewHybrid(c, opts)

	res := ingest(t, h, UserTurn("u1"), AssistantTurn("a1"), UserTurn("u2"), AssistantTurn("a2"))
	assert.Equal(t, 1, res.FlushErrors)
	assert.Equal(t, 4, h.Stats().WriteCounter)
	assert.Len(t, h.Buffer(), 4, "ingestion continues after a failed flush")

	res = ingest(t, h, UserTurn("u3"))
	assert.Equal(t, 1, res.FlushErrors)
	assert.Equal(t, 5, h.Stats().WriteCounter)

	c.err = nil
	res = ingest(t, h, AssistantTurn("a3"))
	assert.Equal(t, 1, res.Flushes)
	assert.Zero(t, h.Stats().WriteCounter)
	assert.Equal(t, 3, c.calls)
	assert.Equal(t, "u3 | a3", h.long.Summary())
}

func TestHybrid_ContextBeforeFlushIsShortBuffer(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())
	ingest(t, h, UserTurn("hello"), AssistantTurn("hi, how can I help?"))

	assert.Equal(t, h.Buffer(), h.Context())
}

func TestHybrid_ContextStartsWithSummary(t *testing.T) {
	opts := testOptions()
	opts.SummaryMaxTokens = 1
	h := NewHybrid(&fakeCondenser{}, opts)
	ingest(t, h, UserTurn("u1"), AssistantTurn("a1"), UserTurn("u2"), AssistantTurn("a2"))

	turns := h.Context()
	require.Len(t, turns, 5)
	assert.Equal(t, Turn{Role: RoleSystem, Text: summaryPrefix + "u2 | a2"}, turns[0])
	assert.Equal(t, h.Buffer(), turns[1:])
}

func TestHybrid_RepetitionResetScenario(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())

	ingest(t, h, UserTurn("hi"), AssistantTurn("Hello! What would you like to eat?"))
	ingest(t, h, UserTurn("hi"), AssistantTurn("Hi again!"))
	res := ingest(t, h, UserTurn("hi"), AssistantTurn("Can I suggest a meal plan?"))
	assert.False(t, res.Reset)
	assert.Equal(t, 1, h.Stats().RepetitionStreak)

	res = ingest(t, h, UserTurn("hi"), AssistantTurn("never stored"))
	assert.True(t, res.Reset)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Dropped)

	assert.Equal(t, []Turn{
		AssistantTurn(RestartAnnouncement),
		UserTurn("hi"),
		AssistantTurn("Can I suggest a meal plan?"),
	}, h.Buffer())
	assert.Equal(t, Stats{BufferedTurns: 3}, h.Stats())
}

func TestHybrid_ResetHappensOncePerQualifyingPair(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())

	resets := 0
	for i := 0; i < 6; i++ {
		res := ingest(t, h, UserTurn("hi"))
		if res.Reset {
			resets++
		}
	}
	// Windows: 3rd hi → streak 1, 4th → reset; window restarts empty, so the
	// 5th and 6th only refill it.
	assert.Equal(t, 1, resets)
	assert.Equal(t, 2, h.Stats().RecentUtterances)
	assert.Zero(t, h.Stats().RepetitionStreak)
}

func TestHybrid_NonRepetitiveWindowClearsStreak(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())
	ingest(t, h, UserTurn("hi"), UserTurn("hi"), UserTurn("hi"))
	require.Equal(t, 1, h.Stats().RepetitionStreak)

	ingest(t, h, UserTurn("what should I eat for lunch"))
	assert.Zero(t, h.Stats().RepetitionStreak)
	assert.Equal(t, RepetitionWindow, h.Stats().RecentUtterances)
}

func TestHybrid_ResetDropsRestOfBatch(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())
	ingest(t, h, UserTurn("hi"), UserTurn("hi"), UserTurn("hi"))

	res := ingest(t, h, UserTurn("hi"), AssistantTurn("x"), UserTurn("y"))
	assert.True(t, res.Reset)
	assert.Equal(t, 2, res.Dropped)
	// No assistant turn existed, so only the announcement and the user turn.
	assert.Equal(t, []Turn{AssistantTurn(RestartAnnouncement), UserTurn("hi")}, h.Buffer())
}

func TestHybrid_Clear(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())
	ingest(t, h, UserTurn("u1"), AssistantTurn("a1"), UserTurn("u2"), AssistantTurn("a2"), UserTurn("u3"))

	h.Clear()

	assert.Equal(t, []Turn{AssistantTurn(RestartAnnouncement), UserTurn("u3"), AssistantTurn("a2")}, h.Buffer())
	assert.Equal(t, Stats{BufferedTurns: 3}, h.Stats())
	assert.Equal(t, h.Buffer(), h.Context(), "summary is wiped")
}

func TestHybrid_ClearEmpty(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())
	h.Clear()
	assert.Equal(t, []Turn{AssistantTurn(RestartAnnouncement)}, h.Buffer())
}

func TestHybrid_MalformedTurnRejectsWholeBatch(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())

	_, err := h.Ingest(context.Background(), UserTurn("ok"), Turn{Role: "bot", Text: "x"})
	assert.ErrorIs(t, err, ErrMalformedTurn)

	_, err = h.Ingest(context.Background(), UserTurn("   "))
	assert.ErrorIs(t, err, ErrMalformedTurn)

	_, err = h.Ingest(context.Background(), Turn{Role: RoleSystem, Text: "summary"})
	assert.ErrorIs(t, err, ErrMalformedTurn)

	assert.Empty(t, h.Buffer())
	assert.Equal(t, Stats{}, h.Stats())
}

func TestHybrid_NeverDropsTurnsWithoutReset(t *testing.T) {
	h := NewHybrid(&fakeCondenser{}, testOptions())
	for i := 0; i < 25; i++ {
		ingest(t, h, UserTurn(fmt.Sprintf("question number %d about food", i)),
			AssistantTurn(fmt.Sprintf("answer %d", i)))
	}
	assert.Len(t, h.Buffer(), 50)
}

func TestHybrid_WindowMode(t *testing.T) {
	opts := WindowOptions()
	opts.TokenCounter = EstimateTokens
	opts.SummaryMaxTokens = 10_000
	h := NewHybrid(&fakeCondenser{}, opts)

	for i := 0; i < 4; i++ {
		res := ingest(t, h, UserTurn("hi"), AssistantTurn(fmt.Sprintf("reply %d", i)))
		assert.False(t, res.Reset, "window mode never resets")
	}

	buf := h.Buffer()
	require.Len(t, buf, WindowModeMaxTurns)
	assert.Equal(t, UserTurn("hi"), buf[0])
	assert.Equal(t, AssistantTurn("reply 3"), buf[5])
	assert.Zero(t, h.Stats().RecentUtterances)
	assert.Zero(t, h.Stats().WriteCounter)
	assert.Equal(t, buf, h.Context(), "window mode keeps no summary")
}

func TestOptionsForMode(t *testing.T) {
	o, ok := OptionsForMode("")
	require.True(t, ok)
	assert.True(t, o.RepetitionDetection)

	o, ok = OptionsForMode(ModeWindow)
	require.True(t, ok)
	assert.False(t, o.RepetitionDetection)
	assert.Equal(t, WindowModeMaxTurns, o.MaxBufferedTurns)

	_, ok = OptionsForMode("bogus")
	assert.False(t, ok)
}
