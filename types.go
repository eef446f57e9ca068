package authcore

import (
	"time"

	"github.com/vitrin-labs/authcore/fingerprint"
)

// RiskLevel classifies how trustworthy the current session/device
// pairing is.
type RiskLevel uint8

const (
	// RiskLow is the baseline for a consistent device and clean trail.
	RiskLow RiskLevel = iota
	// RiskMedium marks degraded trust (partial device match, session
	// near its inactivity bound).
	RiskMedium
	// RiskHigh marks an untrusted pairing (device mismatch, recent
	// high-risk events).
	RiskHigh
)

// String returns the lowercase risk name.
func (r RiskLevel) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

func maxRisk(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}

// SessionState is the lifecycle state of the session record.
type SessionState uint8

const (
	// StateCreated is the state immediately after CreateSession.
	StateCreated SessionState = iota
	// StateValid means the session passed its last validation.
	StateValid
	// StateExpired means the inactivity bound was breached.
	StateExpired
	// StateTerminated means the session ended by logout or
	// unrecoverable validation failure.
	StateTerminated
)

// String returns the lowercase state name.
func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	default:
		return "terminated"
	}
}

// Session is the authoritative session record. It is owned exclusively
// by the Core and mutated only through validate/terminate/activity
// operations; callers receive copies.
type Session struct {
	SessionID     string
	UserID        string
	CreatedAt     time.Time
	LastActivity  time.Time
	MaxInactivity time.Duration
	RiskLevel     RiskLevel
	State         SessionState
	Fingerprint   fingerprint.Fingerprint
}

// SessionOptions tune session creation. Zero values fall back to the
// configured defaults.
type SessionOptions struct {
	MaxInactivity time.Duration
	RiskLevel     RiskLevel
}

// ValidationResult is returned by ValidateCurrentSession. A failed
// validation is non-fatal to the caller but fatal to the session.
type ValidationResult struct {
	IsValid      bool
	RiskLevel    RiskLevel
	ExpiringSoon bool
	Reason       string
}

// SessionStatus is a point-in-time snapshot for introspection.
type SessionStatus struct {
	Active         bool
	State          SessionState
	SessionID      string
	UserID         string
	RiskLevel      RiskLevel
	Remaining      time.Duration
	ExpiringSoon   bool
	TokenPresent   bool
	TokenExpiresAt time.Time
}

// RefreshStatus describes the coordinator. Introspection only, no side
// effects.
type RefreshStatus struct {
	Active       bool
	TokenPresent bool
}

// LoginResult is returned by Core.Login. When MFARequired is set no
// session exists yet; complete the flow with Core.CompleteMFA.
type LoginResult struct {
	Session     *Session
	MFARequired bool
	UserID      string
}
