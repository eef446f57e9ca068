package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitrin-labs/authcore/storage"
)

// DefaultMaxEvents is the retained-event cap when none is configured.
const DefaultMaxEvents = 100

// Log is the security event ledger. Record persists synchronously so a
// reload does not lose the most recent events.
type Log struct {
	backend storage.Backend
	max     int
	logger  *slog.Logger
}

// New returns a ledger over backend retaining at most max events
// (DefaultMaxEvents when max <= 0).
func New(backend storage.Backend, max int, logger *slog.Logger) *Log {
	if max <= 0 {
		max = DefaultMaxEvents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{backend: backend, max: max, logger: logger}
}

// Record appends event to the ledger, assigning ID and timestamp when
// unset, and evicting the oldest entry beyond the cap.
func (l *Log) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.normalize()

	entry, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return l.backend.AppendEvent(ctx, entry, l.max)
}

// List returns retained events newest first. A non-zero since filters
// to events within the trailing window.
func (l *Log) List(ctx context.Context, since time.Duration) ([]Event, error) {
	entries, err := l.backend.ListEvents(ctx, l.max)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if since > 0 {
		cutoff = time.Now().Add(-since)
	}

	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		var event Event
		if err := json.Unmarshal(entry, &event); err != nil {
			// Skip corrupt entries rather than losing the readable
			// remainder of the trail.
			l.logger.Warn("skipping corrupt ledger entry")
			continue
		}
		event.denormalize()
		if !cutoff.IsZero() && event.Timestamp.Before(cutoff) {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// HasRiskAtOrAbove reports whether any event within the trailing window
// carries at least the given risk.
func (l *Log) HasRiskAtOrAbove(ctx context.Context, risk Risk, window time.Duration) (bool, error) {
	events, err := l.List(ctx, window)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Risk >= risk {
			return true, nil
		}
	}
	return false, nil
}

// Clear wipes the ledger. Reserved for explicit user-initiated wipes;
// the core never calls it to suppress history.
func (l *Log) Clear(ctx context.Context) error {
	return l.backend.ClearEvents(ctx)
}
