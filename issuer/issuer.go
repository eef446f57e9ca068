// Package issuer defines the boundary to the external identity
// service. The core treats the issuer as opaque beyond the token
// bundle fields it returns; it never mints tokens itself.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitrin-labs/authcore/tokenstore"
)

var (
	// ErrInvalidCredentials is returned when the issuer rejects a
	// login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshRejected is returned when the issuer rejects the
	// refresh token. Terminal for the session.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrIssuerUnavailable is returned on transport-level failure.
	ErrIssuerUnavailable = errors.New("identity service unavailable")
)

// Credentials are forwarded to the issuer verbatim.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the issuer's reply to a login. When MFARequired is
// set the bundle is withheld from storage until the MFA oracle passes.
type LoginResult struct {
	Bundle      tokenstore.Bundle
	UserID      string
	MFARequired bool
}

// TokenIssuer is the external identity service.
type TokenIssuer interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*tokenstore.Bundle, error)
}

// MFAVerifier is the external TOTP/SMS verification oracle. The core
// only reacts to pass/fail; the code algorithm lives elsewhere.
type MFAVerifier interface {
	VerifyCode(ctx context.Context, userID, code string) (bool, error)
}

// tokenResponse is the issuer wire shape for both login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id,omitempty"`
	MFARequired  bool   `json:"mfa_required,omitempty"`
}

// HTTPIssuer talks JSON over HTTPS to the identity service.
type HTTPIssuer struct {
	baseURL     string
	loginPath   string
	refreshPath string
	client      *http.Client
}

// NewHTTPIssuer returns an issuer client for baseURL. Paths default to
// /auth/login and /auth/refresh.
func NewHTTPIssuer(baseURL string, client *http.Client) *HTTPIssuer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPIssuer{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		loginPath:   "/auth/login",
		refreshPath: "/auth/refresh",
		client:      client,
	}
}

// WithPaths overrides the login and refresh endpoint paths.
func (h *HTTPIssuer) WithPaths(loginPath, refreshPath string) *HTTPIssuer {
	if loginPath != "" {
		h.loginPath = loginPath
	}
	if refreshPath != "" {
		h.refreshPath = refreshPath
	}
	return h
}

// Login exchanges credentials for a token bundle.
func (h *HTTPIssuer) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	resp, err := h.post(ctx, h.loginPath, creds)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	wire, err := decodeToken(resp.Body)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Bundle:      wire.bundle(),
		UserID:      wire.UserID,
		MFARequired: wire.MFARequired,
	}, nil
}

// Refresh exchanges a refresh token for a new bundle. A 4xx reply maps
// to ErrRefreshRejected, which the core treats as terminal.
func (h *HTTPIssuer) Refresh(ctx context.Context, refreshToken string) (*tokenstore.Bundle, error) {
	resp, err := h.post(ctx, h.refreshPath, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, ErrRefreshRejected
	default:
		return nil, fmt.Errorf("refresh returned status %d", resp.StatusCode)
	}

	wire, err := decodeToken(resp.Body)
	if err != nil {
		return nil, err
	}
	bundle := wire.bundle()
	return &bundle, nil
}

func (h *HTTPIssuer) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIssuerUnavailable, err)
	}
	return resp, nil
}

func decodeToken(r io.Reader) (*tokenResponse, error) {
	var wire tokenResponse
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("malformed issuer response: %w", err)
	}
	return &wire, nil
}

// bundle converts the wire reply to a stored bundle. Expiry is
// issuance time plus the server-declared TTL, never client-extended.
func (t *tokenResponse) bundle() tokenstore.Bundle {
	return tokenstore.Bundle{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(t.ExpiresIn) * time.Second),
		TokenType:    t.TokenType,
	}
}
