// Package eventlog maintains the append-only, capped, persisted ledger
// of security events. Events are immutable once written and survive
// process reloads.
package eventlog

import (
	"time"
)

// Type enumerates the closed set of security event kinds.
type Type uint8

const (
	// TypeLogin records a successful login.
	TypeLogin Type = iota
	// TypeLogout records a voluntary session termination.
	TypeLogout
	// TypeSessionCreated records session establishment.
	TypeSessionCreated
	// TypeSessionValidated records a successful validation pass.
	TypeSessionValidated
	// TypeSecurityWarning records a non-fatal security anomaly
	// (inactivity breach, integrity failure, involuntary teardown).
	TypeSecurityWarning
	// TypeSuspiciousActivity records signals consistent with abuse
	// (device mismatch under high risk, repeated auth failures).
	TypeSuspiciousActivity
)

var typeNames = map[Type]string{
	TypeLogin:              "login",
	TypeLogout:             "logout",
	TypeSessionCreated:     "session_created",
	TypeSessionValidated:   "session_validated",
	TypeSecurityWarning:    "security_warning",
	TypeSuspiciousActivity: "suspicious_activity",
}

// String returns the wire name of the event type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Risk mirrors the session risk classification on the ledger. Values
// align with the root package's RiskLevel.
type Risk uint8

const (
	// RiskLow marks routine events.
	RiskLow Risk = iota
	// RiskMedium marks degraded-trust events.
	RiskMedium
	// RiskHigh marks events that should escalate session risk.
	RiskHigh
)

// String returns the lowercase risk name.
func (r Risk) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

// LoginDetails is the payload for login and logout events.
type LoginDetails struct {
	UserID string `json:"user_id"`
	Method string `json:"method,omitempty"`
}

// SessionDetails is the payload for session lifecycle events.
type SessionDetails struct {
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id,omitempty"`
	FingerprintID string `json:"fingerprint_id,omitempty"`
}

// WarningDetails is the payload for security_warning events.
type WarningDetails struct {
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason"`
}

// SuspicionDetails is the payload for suspicious_activity events.
type SuspicionDetails struct {
	SessionID string `json:"session_id,omitempty"`
	Signal    string `json:"signal"`
	Observed  string `json:"observed,omitempty"`
}

// Event is one immutable ledger entry. Exactly one detail field is set,
// matching Type; the union is closed so the audit trail stays
// inspectable.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"-"`
	TypeName  string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Risk      Risk      `json:"-"`
	RiskName  string    `json:"risk"`

	Login     *LoginDetails     `json:"login,omitempty"`
	Session   *SessionDetails   `json:"session,omitempty"`
	Warning   *WarningDetails   `json:"warning,omitempty"`
	Suspicion *SuspicionDetails `json:"suspicion,omitempty"`
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

var risksByName = map[string]Risk{
	"low":    RiskLow,
	"medium": RiskMedium,
	"high":   RiskHigh,
}

// normalize fills the serialized name fields from the enum values.
func (e *Event) normalize() {
	e.TypeName = e.Type.String()
	e.RiskName = e.Risk.String()
}

// denormalize restores enum values from the serialized names.
func (e *Event) denormalize() {
	if t, ok := typesByName[e.TypeName]; ok {
		e.Type = t
	}
	if r, ok := risksByName[e.RiskName]; ok {
		e.Risk = r
	}
}
