package authcore

import (
	"errors"
	"time"

	"github.com/vitrin-labs/authcore/internal"
)

// Config controls every subsystem of the Core. Construct via
// defaultConfig-seeded [Builder.WithConfig]; instances are treated as
// immutable after Build.
type Config struct {
	Session  SessionConfig
	Refresh  RefreshConfig
	EventLog EventLogConfig
	Notify   NotifyConfig
	Metrics  MetricsConfig
	Storage  StorageConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds the session lifecycle.
type SessionConfig struct {
	// MaxInactivity is the default inactivity window before a session
	// expires. Overridable per session via SessionOptions.
	MaxInactivity time.Duration
	// ExpiringSoonWindow is the remaining-time threshold below which
	// validation surfaces ExpiringSoon and risk is at least medium.
	ExpiringSoonWindow time.Duration
	// ValidateInterval is the periodic full-validation tick.
	ValidateInterval time.Duration
	// ExpiryCheckInterval is the periodic remaining-time tick that
	// drives expiring-soon notifications.
	ExpiryCheckInterval time.Duration
	// HighRiskEventWindow is the trailing window in which high-risk
	// ledger events escalate session risk.
	HighRiskEventWindow time.Duration
	// SuspicionThreshold is the number of consecutive failed logins at
	// which a suspicious-activity event is recorded. A successful login
	// resets the count.
	SuspicionThreshold int
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig tunes the token refresh coordinator.
type RefreshConfig struct {
	// ExpiryWindow triggers a proactive refresh when less than this
	// remains on the access token.
	ExpiryWindow time.Duration
	// Timeout bounds one refresh network operation. Waiters queued
	// behind the flight still observe their own context deadlines.
	Timeout time.Duration
}

/*
====================================
EVENT LOG CONFIG
====================================
*/

// EventLogConfig bounds the security event ledger.
type EventLogConfig struct {
	// MaxEvents is the retained-event cap; oldest entries are evicted
	// first.
	MaxEvents int
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig tunes the asynchronous notification dispatcher that
// feeds UI subscribers.
type NotifyConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the in-process counters consumed by the
// metrics/export exporters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig names the durable storage layout and key material.
type StorageConfig struct {
	// RedisPrefix namespaces the vault blob and event ledger keys.
	RedisPrefix string
	// DeviceSecret is the device-bound secret the vault keys derive
	// from. When empty, a secret is derived from the device
	// fingerprint; supply one for stronger binding.
	DeviceSecret []byte
}

// NewDeviceSecret returns a fresh random secret suitable for
// [StorageConfig.DeviceSecret]. The caller owns its persistence; the
// core never writes key material to storage.
func NewDeviceSecret() ([]byte, error) {
	return internal.NewDeviceSecret()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			MaxInactivity:       30 * time.Minute,
			ExpiringSoonWindow:  5 * time.Minute,
			ValidateInterval:    5 * time.Minute,
			ExpiryCheckInterval: 30 * time.Second,
			HighRiskEventWindow: 24 * time.Hour,
			SuspicionThreshold:  3,
		},
		Refresh: RefreshConfig{
			ExpiryWindow: 30 * time.Second,
			Timeout:      10 * time.Second,
		},
		EventLog: EventLogConfig{
			MaxEvents: 100,
		},
		Notify: NotifyConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Storage: StorageConfig{
			RedisPrefix: "ac",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.Storage.DeviceSecret) > 0 {
		out.Storage.DeviceSecret = make([]byte, len(cfg.Storage.DeviceSecret))
		copy(out.Storage.DeviceSecret, cfg.Storage.DeviceSecret)
	}
	return out
}

// Validate rejects configurations the Core cannot run safely.
func (c *Config) Validate() error {
	// Session
	if c.Session.MaxInactivity <= 0 {
		return errors.New("Session MaxInactivity must be > 0")
	}
	if c.Session.ExpiringSoonWindow <= 0 {
		return errors.New("Session ExpiringSoonWindow must be > 0")
	}
	if c.Session.ValidateInterval <= 0 {
		return errors.New("Session ValidateInterval must be > 0")
	}
	if c.Session.ExpiryCheckInterval <= 0 {
		return errors.New("Session ExpiryCheckInterval must be > 0")
	}
	if c.Session.HighRiskEventWindow <= 0 {
		return errors.New("Session HighRiskEventWindow must be > 0")
	}
	if c.Session.SuspicionThreshold <= 0 {
		return errors.New("Session SuspicionThreshold must be > 0")
	}

	// Refresh
	if c.Refresh.ExpiryWindow < 0 {
		return errors.New("Refresh ExpiryWindow must be >= 0")
	}
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}

	// Event log
	if c.EventLog.MaxEvents <= 0 {
		return errors.New("EventLog MaxEvents must be > 0")
	}

	// Notify
	if c.Notify.Enabled && c.Notify.BufferSize <= 0 {
		return errors.New("Notify BufferSize must be > 0 when enabled")
	}

	return nil
}
