package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/vitrin-labs/authcore/eventlog"
)

// NotificationKind enumerates the events the core publishes to its
// subscribers (typically a UI layer).
type NotificationKind uint8

const (
	// KindSecurityEventRecorded fires after a ledger event persists.
	KindSecurityEventRecorded NotificationKind = iota
	// KindSessionExpiringSoon fires when remaining session time drops
	// below the configured window.
	KindSessionExpiringSoon
	// KindSessionTerminated fires when a session ends for any reason.
	KindSessionTerminated
)

// String returns the wire name of the notification kind.
func (k NotificationKind) String() string {
	switch k {
	case KindSecurityEventRecorded:
		return "security-event-recorded"
	case KindSessionExpiringSoon:
		return "session-expiring-soon"
	default:
		return "session-terminated"
	}
}

// Notification is one published occurrence. Exactly the fields
// matching Kind are populated.
type Notification struct {
	Kind      NotificationKind `json:"-"`
	KindName  string           `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	SessionID string           `json:"session_id,omitempty"`

	// Event is set for KindSecurityEventRecorded.
	Event *eventlog.Event `json:"event,omitempty"`
	// Remaining is set for KindSessionExpiringSoon.
	Remaining time.Duration `json:"remaining,omitempty"`
	// Reason is set for KindSessionTerminated.
	Reason string `json:"reason,omitempty"`
}

// NotificationSink receives published notifications.
type NotificationSink interface {
	Emit(ctx context.Context, n Notification)
}

// NoOpSink discards notifications.
type NoOpSink struct{}

// Emit discards the notification.
func (NoOpSink) Emit(context.Context, Notification) {}

// ChannelSink buffers notifications on a channel for pull-style
// consumers.
type ChannelSink struct {
	notifications chan Notification
}

// NewChannelSink returns a sink buffering up to buffer notifications.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		notifications: make(chan Notification, buffer),
	}
}

// Emit enqueues n, blocking until space or ctx cancellation.
func (s *ChannelSink) Emit(ctx context.Context, n Notification) {
	select {
	case s.notifications <- n:
	case <-ctx.Done():
	}
}

// Notifications returns the receive side of the sink.
func (s *ChannelSink) Notifications() <-chan Notification {
	return s.notifications
}

// JSONWriterSink writes one JSON object per notification to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit serializes n and appends it to the writer.
func (s *JSONWriterSink) Emit(_ context.Context, n Notification) {
	if s == nil || s.writer == nil {
		return
	}
	n.KindName = n.Kind.String()
	data, err := json.Marshal(n)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
