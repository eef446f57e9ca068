package authcore

import "errors"

var (
	// ErrAuthenticationRequired is the terminal condition surfaced when
	// the stored credentials can no longer be refreshed; the caller
	// must run a fresh login.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrTokenExpired marks an access token past its expiry. Expected;
	// triggers the refresh path.
	ErrTokenExpired = errors.New("access token expired")
	// ErrRefreshFailed marks a rejected or unusable refresh token.
	// Terminal for the session.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrStorageIntegrity marks detected vault tampering or corruption.
	ErrStorageIntegrity = errors.New("storage integrity violation")
	// ErrDeviceMismatch marks a fingerprint inconsistency. Non-fatal;
	// escalates risk only.
	ErrDeviceMismatch = errors.New("device fingerprint mismatch")
	// ErrSessionNotFound is returned by operations requiring an active
	// session when none exists.
	ErrSessionNotFound = errors.New("no active session")
	// ErrSessionExpired is returned when the inactivity bound was
	// breached.
	ErrSessionExpired = errors.New("session expired")
	// ErrMFAInvalid is returned when the verification oracle rejects
	// the submitted code.
	ErrMFAInvalid = errors.New("invalid mfa code")
	// ErrMFAUnavailable is returned when no MFA verifier is configured
	// but the issuer demands one.
	ErrMFAUnavailable = errors.New("mfa verifier unavailable")
	// ErrNoPendingLogin is returned by CompleteMFA when no login is
	// awaiting a second factor.
	ErrNoPendingLogin = errors.New("no login pending mfa completion")
	// ErrCoreClosed is returned after Close.
	ErrCoreClosed = errors.New("core closed")
)
