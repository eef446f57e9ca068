package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vitrin-labs/authcore/eventlog"
	"github.com/vitrin-labs/authcore/fingerprint"
)

// DeviceCheck is the result of comparing the current environment
// against the fingerprint captured at session creation.
type DeviceCheck struct {
	Consistent       bool
	RiskContribution RiskLevel
}

// Err maps an inconsistent check to ErrDeviceMismatch for callers that
// propagate device state as an error instead of a risk signal.
func (d DeviceCheck) Err() error {
	if d.Consistent {
		return nil
	}
	return ErrDeviceMismatch
}

// CreateSession establishes a new session for userID, capturing the
// current device fingerprint and starting the periodic validation
// timers. An existing session is replaced.
func (c *Core) CreateSession(ctx context.Context, userID string, opts SessionOptions) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrCoreClosed
	}

	maxInactivity := opts.MaxInactivity
	if maxInactivity <= 0 {
		maxInactivity = c.config.Session.MaxInactivity
	}

	now := time.Now()
	sess := &Session{
		SessionID:     uuid.NewString(),
		UserID:        userID,
		CreatedAt:     now,
		LastActivity:  now,
		MaxInactivity: maxInactivity,
		RiskLevel:     opts.RiskLevel,
		State:         StateCreated,
		Fingerprint:   c.fingerprints.Generate(),
	}

	c.mu.Lock()
	if prev := c.session; prev != nil && (prev.State == StateCreated || prev.State == StateValid) {
		c.logger.Info("replacing active session", "previous", prev.SessionID)
	}
	c.session = sess
	c.startTimersLocked()
	snapshot := *sess
	c.mu.Unlock()

	c.metricInc(MetricSessionCreated)
	c.recordEvent(ctx, eventlog.Event{
		Type:    eventlog.TypeSessionCreated,
		Message: "session created",
		Risk:    riskToLedger(opts.RiskLevel),
		Session: &eventlog.SessionDetails{
			SessionID:     sess.SessionID,
			UserID:        userID,
			FingerprintID: sess.Fingerprint.ID,
		},
	})

	return &snapshot, nil
}

// ActiveSession returns a copy of the current session record, or an
// error describing why none is usable.
func (c *Core) ActiveSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.session == nil:
		return nil, ErrSessionNotFound
	case c.session.State == StateExpired:
		return nil, ErrSessionExpired
	case c.session.State == StateTerminated:
		return nil, ErrSessionNotFound
	}
	snapshot := *c.session
	return &snapshot, nil
}

// ValidateDeviceForAuth compares the current fingerprint against the
// one bound to the active session. Pure and side-effect free; without
// a session the device is its own baseline and consistent.
func (c *Core) ValidateDeviceForAuth() DeviceCheck {
	current := c.fingerprints.Generate()

	c.mu.Lock()
	var stored fingerprint.Fingerprint
	if c.session != nil {
		stored = c.session.Fingerprint
	}
	c.mu.Unlock()

	if stored.ID == "" {
		return DeviceCheck{Consistent: true, RiskContribution: RiskLow}
	}

	switch fingerprint.Compare(stored, current) {
	case fingerprint.MatchExact:
		return DeviceCheck{Consistent: true, RiskContribution: RiskLow}
	case fingerprint.MatchPartial:
		return DeviceCheck{Consistent: false, RiskContribution: RiskMedium}
	default:
		return DeviceCheck{Consistent: false, RiskContribution: RiskHigh}
	}
}

// ValidateCurrentSession recomputes session validity and risk. Risk is
// the maximum of the device consistency signal, the trailing high-risk
// event signal, and inactivity proximity — a low signal can never
// downgrade a worse one. A failed validation is returned to the caller
// as a result, but the session itself is torn down.
func (c *Core) ValidateCurrentSession(ctx context.Context) ValidationResult {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	current := c.fingerprints.Generate()
	highEvents, err := c.events.HasRiskAtOrAbove(ctx, eventlog.RiskHigh, c.config.Session.HighRiskEventWindow)
	if err != nil {
		c.logger.Warn("event window query failed during validation", "error", err)
	}

	c.mu.Lock()
	sess := c.session
	if sess == nil || sess.State == StateExpired || sess.State == StateTerminated {
		c.mu.Unlock()
		c.metricInc(MetricValidationFailure)
		c.recordEvent(ctx, eventlog.Event{
			Type:    eventlog.TypeSecurityWarning,
			Message: "validation without an active session",
			Risk:    eventlog.RiskMedium,
			Warning: &eventlog.WarningDetails{Reason: "no_active_session"},
		})
		return ValidationResult{IsValid: false, RiskLevel: RiskLow, Reason: "no_active_session"}
	}

	inactive := time.Since(sess.LastActivity)
	if inactive >= sess.MaxInactivity {
		sessionID := sess.SessionID
		priorRisk := sess.RiskLevel
		sess.State = StateExpired
		c.stopTimersLocked()
		c.sessionEpoch.Add(1)
		c.mu.Unlock()

		// An expired session cannot carry credentials: callers must
		// re-authenticate, so the vault goes with it.
		c.tokens.ClearTokens(ctx)

		c.metricInc(MetricSessionExpired)
		c.metricInc(MetricValidationFailure)
		c.recordEvent(ctx, eventlog.Event{
			Type:    eventlog.TypeSecurityWarning,
			Message: "session expired after inactivity",
			Risk:    eventlog.RiskMedium,
			Warning: &eventlog.WarningDetails{SessionID: sessionID, Reason: "inactivity_timeout"},
		})
		c.notifier.emit(ctx, Notification{
			Kind:      KindSessionTerminated,
			KindName:  KindSessionTerminated.String(),
			Timestamp: time.Now(),
			SessionID: sessionID,
			Reason:    "inactivity_timeout",
		})
		return ValidationResult{IsValid: false, RiskLevel: priorRisk, Reason: "inactivity_timeout"}
	}

	match := fingerprint.Compare(sess.Fingerprint, current)
	deviceRisk := RiskLow
	switch match {
	case fingerprint.MatchPartial:
		deviceRisk = RiskMedium
	case fingerprint.MatchNone:
		deviceRisk = RiskHigh
	}

	eventRisk := RiskLow
	if highEvents {
		eventRisk = RiskHigh
	}

	remaining := sess.MaxInactivity - inactive
	expiringSoon := remaining < c.config.Session.ExpiringSoonWindow
	inactivityRisk := RiskLow
	if expiringSoon {
		inactivityRisk = RiskMedium
	}

	risk := maxRisk(deviceRisk, eventRisk, inactivityRisk)
	priorRisk := sess.RiskLevel
	sess.RiskLevel = risk
	sess.State = StateValid
	sessionID := sess.SessionID
	userID := sess.UserID
	c.mu.Unlock()

	if match == fingerprint.MatchNone {
		c.metricInc(MetricFingerprintMismatch)
		c.recordEvent(ctx, eventlog.Event{
			Type:      eventlog.TypeSuspiciousActivity,
			Message:   "device fingerprint does not match session baseline",
			Risk:      eventlog.RiskHigh,
			Suspicion: &eventlog.SuspicionDetails{
				SessionID: sessionID,
				Signal:    "device_mismatch",
				Observed:  current.ID,
			},
		})
	} else if risk == RiskHigh && priorRisk < RiskHigh {
		c.recordEvent(ctx, eventlog.Event{
			Type:    eventlog.TypeSecurityWarning,
			Message: "session risk escalated to high",
			Risk:    eventlog.RiskHigh,
			Warning: &eventlog.WarningDetails{SessionID: sessionID, Reason: "risk_escalated"},
		})
	}

	c.metricInc(MetricSessionValidated)
	c.recordEvent(ctx, eventlog.Event{
		Type:    eventlog.TypeSessionValidated,
		Message: "session validated",
		Risk:    riskToLedger(risk),
		Session: &eventlog.SessionDetails{SessionID: sessionID, UserID: userID},
	})

	return ValidationResult{IsValid: true, RiskLevel: risk, ExpiringSoon: expiringSoon}
}

// UpdateActivity bumps the session's last-activity instant. It does
// not re-validate risk; that happens on explicit validation calls and
// the periodic tick.
func (c *Core) UpdateActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || (c.session.State != StateCreated && c.session.State != StateValid) {
		return
	}
	c.session.LastActivity = time.Now()
}

// Logout voluntarily terminates the session, clearing stored
// credentials and recording a logout event.
func (c *Core) Logout(ctx context.Context) error {
	return c.terminate(ctx, "user logout", true)
}

// TerminateSession involuntarily ends the session for the given
// reason: credentials are cleared and a security warning recorded.
func (c *Core) TerminateSession(ctx context.Context, reason string) error {
	return c.terminate(ctx, reason, false)
}

func (c *Core) terminate(ctx context.Context, reason string, voluntary bool) error {
	c.mu.Lock()
	sess := c.session
	var sessionID, userID string
	hadActive := false
	if sess != nil {
		sessionID = sess.SessionID
		userID = sess.UserID
		hadActive = sess.State == StateCreated || sess.State == StateValid
		sess.State = StateTerminated
	}
	c.stopTimersLocked()
	c.pendingMFA = nil
	c.sessionEpoch.Add(1)
	c.mu.Unlock()

	// Clear credentials unconditionally so a terminate racing a
	// refresh can never leave tokens behind; the epoch bump above makes
	// any in-flight refresh discard its result.
	c.tokens.ClearTokens(ctx)

	if sess == nil {
		return ErrSessionNotFound
	}

	if hadActive {
		c.metricInc(MetricSessionTerminated)
		if voluntary {
			c.recordEvent(ctx, eventlog.Event{
				Type:    eventlog.TypeLogout,
				Message: "session terminated: " + reason,
				Risk:    eventlog.RiskLow,
				Login:   &eventlog.LoginDetails{UserID: userID},
			})
		} else {
			c.recordEvent(ctx, eventlog.Event{
				Type:    eventlog.TypeSecurityWarning,
				Message: "session terminated: " + reason,
				Risk:    eventlog.RiskHigh,
				Warning: &eventlog.WarningDetails{SessionID: sessionID, Reason: reason},
			})
		}
		c.notifier.emit(ctx, Notification{
			Kind:      KindSessionTerminated,
			KindName:  KindSessionTerminated.String(),
			Timestamp: time.Now(),
			SessionID: sessionID,
			Reason:    reason,
		})
	}
	return nil
}

// sessionLive reports whether the current session can carry
// authenticated traffic.
func (c *Core) sessionLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && (c.session.State == StateCreated || c.session.State == StateValid)
}

// Status returns a point-in-time session snapshot for introspection.
func (c *Core) Status() SessionStatus {
	c.mu.Lock()
	sess := c.session
	var status SessionStatus
	if sess != nil {
		remaining := sess.MaxInactivity - time.Since(sess.LastActivity)
		if remaining < 0 {
			remaining = 0
		}
		status = SessionStatus{
			Active:       sess.State == StateCreated || sess.State == StateValid,
			State:        sess.State,
			SessionID:    sess.SessionID,
			UserID:       sess.UserID,
			RiskLevel:    sess.RiskLevel,
			Remaining:    remaining,
			ExpiringSoon: remaining < c.config.Session.ExpiringSoonWindow,
		}
	} else {
		status.State = StateTerminated
	}
	c.mu.Unlock()

	_, status.TokenPresent = c.tokens.GetAccessToken()
	status.TokenExpiresAt = c.tokens.ExpiresAt()
	return status
}

func (c *Core) startTimersLocked() {
	c.stopTimersLocked()

	stop := make(chan struct{})
	c.tickStop = stop
	c.tickWG.Add(1)
	go c.runTimers(stop)
}

// stopTimersLocked signals the timer goroutine; it does not wait, so
// it is safe to call while holding c.mu.
func (c *Core) stopTimersLocked() {
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func (c *Core) runTimers(stop <-chan struct{}) {
	defer c.tickWG.Done()

	validate := time.NewTicker(c.config.Session.ValidateInterval)
	defer validate.Stop()
	expiry := time.NewTicker(c.config.Session.ExpiryCheckInterval)
	defer expiry.Stop()

	for {
		select {
		case <-stop:
			return
		case <-validate.C:
			c.ValidateCurrentSession(context.Background())
		case <-expiry.C:
			c.checkExpiringSoon()
		}
	}
}

func (c *Core) checkExpiringSoon() {
	c.mu.Lock()
	sess := c.session
	if sess == nil || (sess.State != StateCreated && sess.State != StateValid) {
		c.mu.Unlock()
		return
	}
	remaining := sess.MaxInactivity - time.Since(sess.LastActivity)
	sessionID := sess.SessionID
	c.mu.Unlock()

	if remaining < c.config.Session.ExpiringSoonWindow {
		c.notifier.emit(context.Background(), Notification{
			Kind:      KindSessionExpiringSoon,
			KindName:  KindSessionExpiringSoon.String(),
			Timestamp: time.Now(),
			SessionID: sessionID,
			Remaining: remaining,
		})
	}
}
