package authcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vitrin-labs/authcore/eventlog"
	"github.com/vitrin-labs/authcore/issuer"
)

// refreshKey is the singleflight key: refresh is process-global, so
// every caller shares the one flight.
const refreshKey = "refresh"

// EnhancedFetch issues req with the current access token attached,
// coordinating token refresh across concurrent callers:
//
//  1. A token merely expiring soon starts a background refresh and the
//     request proceeds with the current token.
//  2. An expired or absent token blocks the caller behind the shared
//     refresh flight.
//  3. A 401 response attaches to the in-flight refresh (or starts
//     one), then replays the request exactly once. A second 401 is
//     terminal: the session is torn down.
//
// Requests with a body must set req.GetBody (http.NewRequest does this
// for common body types) to be replayable after a 401.
func (c *Core) EnhancedFetch(req *http.Request) (*http.Response, error) {
	if c == nil || c.closed.Load() {
		return nil, ErrCoreClosed
	}
	if !c.sessionLive() {
		return nil, fmt.Errorf("%w: no active session", ErrAuthenticationRequired)
	}
	ctx := req.Context()

	if c.tokens.IsTokenExpired() {
		if err := c.awaitRefresh(ctx); err != nil {
			return nil, err
		}
	} else if c.tokens.IsTokenExpiringSoon(c.config.Refresh.ExpiryWindow) {
		// Fire and forget; this request rides on the current token.
		go func() {
			if err := c.awaitRefresh(context.Background()); err != nil {
				c.logger.Warn("proactive refresh failed", "error", err)
			}
		}()
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		c.UpdateActivity()
		return resp, nil
	}

	// 401: coalesce on the shared flight, then replay once.
	drain(resp)
	if err := c.awaitRefresh(ctx); err != nil {
		return nil, err
	}

	c.metricInc(MetricRetryAfter401)
	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		_ = c.TerminateSession(ctx, "repeated unauthorized responses")
		return nil, fmt.Errorf("%w: request unauthorized after refresh", ErrAuthenticationRequired)
	}

	c.UpdateActivity()
	return resp, nil
}

// AccessToken returns the current access token for callers composing
// requests outside EnhancedFetch. An absent token maps to
// ErrAuthenticationRequired, a present-but-expired one to
// ErrTokenExpired.
func (c *Core) AccessToken() (string, error) {
	access, ok := c.tokens.GetAccessToken()
	if !ok {
		return "", ErrAuthenticationRequired
	}
	if c.tokens.IsTokenExpired() {
		return "", ErrTokenExpired
	}
	return access, nil
}

// RefreshCoordinatorStatus reports the coordinator state. No side
// effects.
func (c *Core) RefreshCoordinatorStatus() RefreshStatus {
	_, present := c.tokens.GetAccessToken()
	return RefreshStatus{
		Active:       c.refreshActive.Load(),
		TokenPresent: present,
	}
}

// awaitRefresh attaches the caller to the shared refresh flight,
// starting one if none is pending. The caller's context bounds only
// its own wait: an abandoned flight still completes for the other
// waiters.
func (c *Core) awaitRefresh(ctx context.Context) error {
	ch := c.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return nil, c.doRefresh()
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metricInc(MetricRefreshCoalesced)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRefresh performs the single refresh network operation. Failure is
// terminal: the session is torn down and every waiter observes the
// same ErrAuthenticationRequired outcome.
func (c *Core) doRefresh() error {
	c.refreshActive.Store(true)
	defer c.refreshActive.Store(false)

	epoch := c.sessionEpoch.Load()
	if !c.sessionLive() {
		return fmt.Errorf("%w: no active session", ErrAuthenticationRequired)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Refresh.Timeout)
	defer cancel()

	refresh, ok := c.tokens.GetRefreshToken(ctx)
	if !ok {
		_ = c.TerminateSession(ctx, "refresh token unavailable")
		return fmt.Errorf("%w: no usable refresh token", ErrAuthenticationRequired)
	}

	bundle, err := c.issuer.Refresh(ctx, refresh)
	if err != nil {
		c.metricInc(MetricRefreshFailure)
		if errors.Is(err, issuer.ErrRefreshRejected) {
			c.recordEvent(ctx, eventlog.Event{
				Type:    eventlog.TypeSecurityWarning,
				Message: "refresh token rejected by identity service",
				Risk:    eventlog.RiskHigh,
				Warning: &eventlog.WarningDetails{Reason: "refresh_rejected"},
			})
			_ = c.TerminateSession(ctx, "refresh token rejected")
			return fmt.Errorf("%w: %w", ErrAuthenticationRequired, ErrRefreshFailed)
		}
		// Transient transport failure: the session survives, the
		// caller may retry its outer request.
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	// The session may have died while the network call was in flight;
	// a rotated bundle must never resurrect credentials behind it.
	if c.sessionEpoch.Load() != epoch || !c.sessionLive() {
		return fmt.Errorf("%w: session ended during refresh", ErrAuthenticationRequired)
	}

	if err := c.tokens.Rotate(ctx, *bundle); err != nil {
		c.metricInc(MetricRefreshFailure)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	// Termination can still race the write above: its epoch bump
	// precedes its vault clear, so a mismatch here means our bundle may
	// have landed after that clear and must be wiped again.
	if c.sessionEpoch.Load() != epoch {
		c.tokens.ClearTokens(ctx)
		return fmt.Errorf("%w: session ended during refresh", ErrAuthenticationRequired)
	}

	c.metricInc(MetricRefreshSuccess)
	return nil
}

func (c *Core) send(req *http.Request) (*http.Response, error) {
	access, ok := c.tokens.GetAccessToken()
	if !ok {
		return nil, ErrAuthenticationRequired
	}
	req.Header.Set("Authorization", c.tokens.TokenType()+" "+access)
	return c.httpClient.Do(req)
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// Transport adapts the coordinator to http.RoundTripper so an
// *http.Client can route every outbound call through EnhancedFetch.
type Transport struct {
	Core *Core
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t == nil || t.Core == nil {
		return nil, errors.New("authcore: transport not configured")
	}
	return t.Core.EnhancedFetch(req)
}

var _ http.RoundTripper = (*Transport)(nil)
