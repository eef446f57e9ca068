package authcore

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vitrin-labs/authcore/eventlog"
	"github.com/vitrin-labs/authcore/fingerprint"
	"github.com/vitrin-labs/authcore/issuer"
	"github.com/vitrin-labs/authcore/storage"
	"github.com/vitrin-labs/authcore/tokenstore"
)

// Core is the session and credential lifecycle service. Construct with
// [Builder.Build]; all methods are safe for concurrent use.
type Core struct {
	config       Config
	logger       *slog.Logger
	fingerprints *fingerprint.Generator
	tokens       *tokenstore.Store
	events       *eventlog.Log
	backend      storage.Backend
	issuer       issuer.TokenIssuer
	mfa          issuer.MFAVerifier
	httpClient   *http.Client
	notifier     *notifyDispatcher
	metrics      *Metrics

	refreshGroup  singleflight.Group
	refreshActive atomic.Bool

	// sessionEpoch advances every time a session dies. A refresh flight
	// captures it at start and discards its result if the epoch moved,
	// so rotated credentials can never outlive the session they served.
	sessionEpoch  atomic.Uint64
	loginFailures atomic.Uint32

	mu         sync.Mutex
	session    *Session
	pendingMFA *issuer.LoginResult
	tickStop   chan struct{}
	tickWG     sync.WaitGroup

	closed atomic.Bool
}

// Close stops the periodic session timers and the notification
// dispatcher. It does not clear stored credentials: a closed core can
// be rebuilt over the same vault.
func (c *Core) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	c.stopTimersLocked()
	c.mu.Unlock()
	c.tickWG.Wait()

	c.notifier.close()
}

// Subscribe registers a notification consumer. The returned handle is
// revocable; a nil handle means notifications are disabled.
func (c *Core) Subscribe(buffer int) *Subscription {
	if c == nil {
		return nil
	}
	return c.notifier.subscribe(buffer)
}

// SecurityEvents returns ledger events newest first, optionally
// filtered to the trailing window.
func (c *Core) SecurityEvents(ctx context.Context, since time.Duration) ([]eventlog.Event, error) {
	return c.events.List(ctx, since)
}

// ClearSecurityEvents wipes the ledger. Explicit user action only; the
// core never invokes it internally.
func (c *Core) ClearSecurityEvents(ctx context.Context) error {
	return c.events.Clear(ctx)
}

// CheckVaultIntegrity recomputes the credential vault's integrity tag.
// A mismatch means the vault was tampered with; by the time the error
// returns, the vault has already been cleared and the integrity hook
// has fired.
func (c *Core) CheckVaultIntegrity(ctx context.Context) error {
	if !c.tokens.ValidateIntegrity(ctx) {
		return ErrStorageIntegrity
	}
	return nil
}

// NotificationsDropped reports how many notifications were discarded
// under backpressure.
func (c *Core) NotificationsDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.notifier.droppedCount()
}

// MetricsSnapshot copies the current counters for the exporters.
func (c *Core) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Core) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// recordEvent persists a ledger event and publishes the corresponding
// notification. Ledger persistence happens before anything else so the
// audit trail survives whatever action follows.
func (c *Core) recordEvent(ctx context.Context, event eventlog.Event) {
	if err := c.events.Record(ctx, event); err != nil {
		c.logger.Warn("security event not persisted", "type", event.Type.String(), "error", err)
	}

	stored := event
	c.notifier.emit(ctx, Notification{
		Kind:      KindSecurityEventRecorded,
		KindName:  KindSecurityEventRecorded.String(),
		Timestamp: time.Now(),
		Event:     &stored,
	})
}

func riskToLedger(r RiskLevel) eventlog.Risk {
	return eventlog.Risk(r)
}
