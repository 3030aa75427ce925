package memory

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

const (
	// FlushEvery is the number of ingested turns between two summary
	// flushes.
	FlushEvery = 4

	// ResetStreak is the number of consecutive repetitive windows that
	// restarts the conversation.
	ResetStreak = 2

	// WindowModeMaxTurns is the short-buffer cap of the lightweight mode.
	WindowModeMaxTurns = 6

	// RestartAnnouncement is the assistant turn inserted by a reset.
	RestartAnnouncement = "It looks like we're repeating ourselves. Let's restart."
)

// Mode names accepted by OptionsForMode.
const (
	ModeHybrid = "hybrid"
	ModeWindow = "window"
)

// Options tune a Hybrid memory.
type Options struct {
	// RepetitionDetection enables the repeated-message reset.
	RepetitionDetection bool

	// MaxBufferedTurns caps the short-term buffer, oldest turns dropped
	// first. Zero keeps every turn until the next reset.
	MaxBufferedTurns int

	// SummaryMaxTokens is the verbatim budget of the summary store.
	SummaryMaxTokens int

	// SkipSummary turns off the periodic flush into the summary store, so
	// the context is the short-term buffer alone.
	SkipSummary bool

	// TokenCounter overrides the summary store's token counter.
	TokenCounter TokenCounter

	// Logger receives reset and flush diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultOptions is the full hybrid mode: repetition detection on, no buffer
// cap.
func DefaultOptions() Options {
	return Options{
		RepetitionDetection: true,
		SummaryMaxTokens:    DefaultSummaryMaxTokens,
	}
}

// WindowOptions is the lightweight mode: a fixed window of the last
// WindowModeMaxTurns turns, with no summary and no repetition detection.
func WindowOptions() Options {
	return Options{
		MaxBufferedTurns: WindowModeMaxTurns,
		SummaryMaxTokens: DefaultSummaryMaxTokens,
		SkipSummary:      true,
	}
}

// OptionsForMode maps a mode name to its Options. Unknown names yield false.
func OptionsForMode(mode string) (Options, bool) {
	switch mode {
	case "", ModeHybrid:
		return DefaultOptions(), true
	case ModeWindow:
		return WindowOptions(), true
	}
	return Options{}, false
}

// IngestResult describes what a single Ingest call did.
type IngestResult struct {
	// Accepted is the number of turns appended to the buffer.
	Accepted int
	// Dropped is the number of turns discarded because a reset ended the
	// batch early.
	Dropped int
	// Flushes counts successful summary flushes.
	Flushes int
	// FlushErrors counts flushes skipped because the condenser failed.
	FlushErrors int
	// Reset is true when a repetition reset happened.
	Reset bool
}

// Stats is a point-in-time view of the counters, for status pages and tests.
type Stats struct {
	BufferedTurns    int
	WriteCounter     int
	RecentUtterances int
	RepetitionStreak int
	HasSummary       bool
}

// Hybrid is one session's memory. Callers that need to serialise a whole
// read-generate-ingest cycle lock the owning Session; Hybrid's own mutex only
// keeps individual calls consistent.
type Hybrid struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger

	long         *SummaryStore
	short        []Turn
	writeCounter int
	recentUser   []string
	streak       int
}

// NewHybrid returns an empty memory that condenses its summary with c.
func NewHybrid(c Condenser, opts Options) *Hybrid {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hybrid{
		opts:   opts,
		logger: logger,
		long:   NewSummaryStore(c, opts.SummaryMaxTokens, opts.TokenCounter),
	}
}

// Ingest appends turns in order, running the repetition check after each
// user turn and the flush check after every turn.
//
// All turns are validated before anything is mutated. A repetition reset
// ends the call immediately: turns after the triggering one are dropped and
// no flush runs. A condenser failure is logged, counted in the result and
// otherwise ignored so the next turn retries the flush.
func (h *Hybrid) Ingest(ctx context.Context, turns ...Turn) (IngestResult, error) {
	for _, t := range turns {
		if err := t.Validate(); err != nil {
			return IngestResult{}, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var res IngestResult
	for i, t := range turns {
		h.appendShort(t)
		res.Accepted++

		if t.Role == RoleUser && h.opts.RepetitionDetection && h.observeUser(t.Text) {
			h.resetLocked()
			res.Reset = true
			res.Dropped = len(turns) - i - 1
			h.logger.Info("memory: repetition detected, conversation restarted",
				"dropped_turns", res.Dropped)
			return res, nil
		}

		if h.opts.SkipSummary {
			continue
		}
		h.writeCounter++
		if h.writeCounter < FlushEvery {
			continue
		}
		switch err := h.flushLocked(ctx); {
		case err == nil:
			res.Flushes++
		case errors.Is(err, errNothingToFlush):
		default:
			res.FlushErrors++
			h.logger.Warn("memory: summary flush failed, will retry on next turn",
				"write_counter", h.writeCounter, "err", err)
		}
	}
	return res, nil
}

// Context returns the turns handed to the reply generator: the materialised
// summary followed by the short-term buffer. It does not touch the counters.
func (h *Hybrid) Context() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	long := h.long.Turns()
	out := make([]Turn, 0, len(long)+len(h.short))
	out = append(out, long...)
	return append(out, h.short...)
}

// Clear restarts the conversation exactly as a repetition reset does.
func (h *Hybrid) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resetLocked()
}

// Stats returns the current counters.
func (h *Hybrid) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		BufferedTurns:    len(h.short),
		WriteCounter:     h.writeCounter,
		RecentUtterances: len(h.recentUser),
		RepetitionStreak: h.streak,
		HasSummary:       !h.long.Empty(),
	}
}

// Buffer returns a copy of the short-term buffer.
func (h *Hybrid) Buffer() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.short)
}

func (h *Hybrid) appendShort(t Turn) {
	h.short = append(h.short, t)
	if limit := h.opts.MaxBufferedTurns; limit > 0 && len(h.short) > limit {
		h.short = slices.Clone(h.short[len(h.short)-limit:])
	}
}

// observeUser slides text into the utterance window and updates the streak.
// It reports whether the streak reached ResetStreak.
func (h *Hybrid) observeUser(text string) bool {
	h.recentUser = append(h.recentUser, text)
	if len(h.recentUser) > RepetitionWindow {
		h.recentUser = h.recentUser[len(h.recentUser)-RepetitionWindow:]
	}
	if len(h.recentUser) < RepetitionWindow {
		return false
	}
	if !IsRepetitive(h.recentUser) {
		h.streak = 0
		return false
	}
	h.streak++
	return h.streak >= ResetStreak
}

var errNothingToFlush = errors.New("memory: no complete exchange to flush")

// flushLocked saves the latest exchange into the summary store. The write
// counter is zeroed on success, or when there is no complete exchange to
// save; it is left untouched when the condenser fails.
func (h *Hybrid) flushLocked(ctx context.Context) error {
	user, okU := lastOfRole(h.short, RoleUser)
	assistant, okA := lastOfRole(h.short, RoleAssistant)
	if !okU || !okA {
		h.writeCounter = 0
		return errNothingToFlush
	}
	if err := h.long.Save(ctx, user, assistant); err != nil {
		return err
	}
	h.writeCounter = 0
	return nil
}

// resetLocked wipes the memory, announces the restart and carries the latest
// exchange over so the next reply still has one turn of continuity.
func (h *Hybrid) resetLocked() {
	user, okU := lastOfRole(h.short, RoleUser)
	assistant, okA := lastOfRole(h.short, RoleAssistant)

	h.short = nil
	h.long.Reset()
	h.writeCounter = 0
	h.recentUser = nil
	h.streak = 0

	h.short = append(h.short, AssistantTurn(RestartAnnouncement))
	if okU {
		h.short = append(h.short, user)
	}
	if okA {
		h.short = append(h.short, assistant)
	}
}
