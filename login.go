package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitrin-labs/authcore/eventlog"
	"github.com/vitrin-labs/authcore/issuer"
)

// Login authenticates against the external issuer, stores the returned
// bundle, and creates a session. When the issuer demands a second
// factor the result carries MFARequired and no session exists until
// [Core.CompleteMFA] succeeds.
func (c *Core) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if c.closed.Load() {
		return nil, ErrCoreClosed
	}

	res, err := c.issuer.Login(ctx, issuer.Credentials{Username: username, Password: password})
	if err != nil {
		c.metricInc(MetricLoginFailure)
		if errors.Is(err, issuer.ErrInvalidCredentials) {
			c.recordEvent(ctx, eventlog.Event{
				Type:    eventlog.TypeSecurityWarning,
				Message: "login rejected by identity service",
				Risk:    eventlog.RiskMedium,
				Warning: &eventlog.WarningDetails{Reason: "login_failed"},
			})
			if failures := c.loginFailures.Add(1); int(failures) >= c.config.Session.SuspicionThreshold {
				c.recordEvent(ctx, eventlog.Event{
					Type:      eventlog.TypeSuspiciousActivity,
					Message:   "repeated login failures",
					Risk:      eventlog.RiskHigh,
					Suspicion: &eventlog.SuspicionDetails{Signal: "repeated_login_failures"},
				})
			}
		}
		return nil, err
	}

	if res.MFARequired {
		c.metricInc(MetricMFARequired)
		c.mu.Lock()
		c.pendingMFA = res
		c.mu.Unlock()
		return &LoginResult{MFARequired: true, UserID: res.UserID}, nil
	}

	return c.finishLogin(ctx, res, "password")
}

// CompleteMFA submits a second-factor code to the verification oracle
// and, on pass, finalizes the login deferred by the issuer.
func (c *Core) CompleteMFA(ctx context.Context, code string) (*LoginResult, error) {
	if c.closed.Load() {
		return nil, ErrCoreClosed
	}
	if c.mfa == nil {
		return nil, ErrMFAUnavailable
	}

	c.mu.Lock()
	pending := c.pendingMFA
	c.mu.Unlock()
	if pending == nil {
		return nil, ErrNoPendingLogin
	}

	ok, err := c.mfa.VerifyCode(ctx, pending.UserID, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMFAUnavailable, err)
	}
	if !ok {
		c.metricInc(MetricMFAFailure)
		c.recordEvent(ctx, eventlog.Event{
			Type:      eventlog.TypeSuspiciousActivity,
			Message:   "mfa code rejected",
			Risk:      eventlog.RiskMedium,
			Suspicion: &eventlog.SuspicionDetails{Signal: "mfa_failed"},
		})
		return nil, ErrMFAInvalid
	}

	c.mu.Lock()
	c.pendingMFA = nil
	c.mu.Unlock()

	return c.finishLogin(ctx, pending, "mfa")
}

func (c *Core) finishLogin(ctx context.Context, res *issuer.LoginResult, method string) (*LoginResult, error) {
	if err := c.tokens.StoreTokens(ctx, res.Bundle, nil); err != nil {
		c.metricInc(MetricLoginFailure)
		return nil, fmt.Errorf("storing login credentials: %w", err)
	}

	sess, err := c.CreateSession(ctx, res.UserID, SessionOptions{})
	if err != nil {
		return nil, err
	}

	c.loginFailures.Store(0)
	c.metricInc(MetricLoginSuccess)
	c.recordEvent(ctx, eventlog.Event{
		Type:    eventlog.TypeLogin,
		Message: "login completed",
		Risk:    eventlog.RiskLow,
		Login:   &eventlog.LoginDetails{UserID: res.UserID, Method: method},
	})

	return &LoginResult{Session: sess, UserID: res.UserID}, nil
}

// StoreCustomerData seals an application payload into the credential
// vault alongside the refresh token.
func (c *Core) StoreCustomerData(ctx context.Context, data []byte) error {
	return c.tokens.SetCustomerData(ctx, data)
}

// CustomerData returns the sealed application payload, if any.
func (c *Core) CustomerData(ctx context.Context) ([]byte, bool) {
	return c.tokens.GetCustomerData(ctx)
}
