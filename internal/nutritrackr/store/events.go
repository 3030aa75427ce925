package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/nutritrackr/common/redact"
	"github.com/bdobrica/nutritrackr/common/trace"
)

const maxDetailLen = 512

// Event is one row of the session event log. SessionKey is stored masked.
type Event struct {
	ID         string
	SessionKey string
	Kind       string
	Detail     string
	TraceID    string
	CreatedAt  time.Time
}

// RecordEvent inserts ev. Missing ID and CreatedAt are filled in, the session
// key is masked and the detail truncated.
func (s *Store) RecordEvent(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.TraceID == "" {
		ev.TraceID = trace.FromContext(ctx)
	}
	ev.SessionKey = redact.Phone(ev.SessionKey)
	if len(ev.Detail) > maxDetailLen {
		ev.Detail = ev.Detail[:maxDetailLen]
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, session_key, kind, detail, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionKey, ev.Kind, ev.Detail, ev.TraceID, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: record event: %w", err)
	}
	return nil
}

// Record implements bot.EventRecorder. Failures are logged, not returned.
func (s *Store) Record(ctx context.Context, sessionKey, kind, detail string) {
	if err := s.RecordEvent(ctx, Event{SessionKey: sessionKey, Kind: kind, Detail: detail}); err != nil {
		s.logger.Warn("store: failed to record event", "kind", kind, "err", err)
	}
}

// CountEvents returns the number of recorded events per kind.
func (s *Store) CountEvents(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM events GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("store: count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("store: scan event count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// RecentEvents returns up to limit events, newest first. A non-empty
// sessionKey restricts the result to that session; it is masked the same
// way RecordEvent masks it.
func (s *Store) RecentEvents(ctx context.Context, sessionKey string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, session_key, kind, detail, trace_id, created_at FROM events"
	args := []any{}
	if sessionKey != "" {
		query += " WHERE session_key = ?"
		args = append(args, redact.Phone(sessionKey))
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.SessionKey, &ev.Kind, &ev.Detail, &ev.TraceID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneEvents deletes events older than cutoff and returns how many went.
func (s *Store) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: prune events: %w", err)
	}
	return res.RowsAffected()
}
