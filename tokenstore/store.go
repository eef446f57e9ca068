// Package tokenstore holds the credential bundle: the access token in
// process memory only, the refresh token encrypted at rest with a
// keyed integrity tag, read back fail-closed.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vitrin-labs/authcore/internal/seal"
	"github.com/vitrin-labs/authcore/storage"
)

// ErrVaultCorrupt is returned by ValidateIntegrity-adjacent paths when
// the stored vault fails its integrity check.
var ErrVaultCorrupt = errors.New("vault integrity check failed")

// ErrNoTokens is returned by operations that require a stored bundle
// when the vault is empty.
var ErrNoTokens = errors.New("no stored tokens")

// Bundle is a credential set issued by the identity service. ExpiresAt
// is derived from issuance time plus the server-declared TTL and is
// never extended client-side.
type Bundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
}

// vaultRecord is the durable layout: ciphertexts plus the tag that
// binds them. The plaintext refresh token never appears here.
type vaultRecord struct {
	RefreshCiphertext  []byte `json:"refresh_ciphertext"`
	CustomerCiphertext []byte `json:"customer_ciphertext,omitempty"`
	IntegrityTag       []byte `json:"integrity_tag"`
}

// Store holds the in-memory access token and mediates all vault I/O.
// Methods are safe for concurrent use.
type Store struct {
	backend storage.Backend
	keys    seal.Keys
	logger  *slog.Logger

	// Invoked once per detected vault compromise, after the vault has
	// been cleared. Optional.
	onIntegrityFailure func()

	mu        sync.RWMutex
	access    string
	tokenType string
	expiresAt time.Time
}

// NewStore derives the sealing keys from the device-bound secret and
// fingerprint ID and returns a store over backend.
func NewStore(backend storage.Backend, secret []byte, fingerprintID string, logger *slog.Logger) (*Store, error) {
	keys, err := seal.DeriveKeys(secret, fingerprintID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		keys:    keys,
		logger:  logger,
	}, nil
}

// SetIntegrityFailureHook registers a callback fired after a detected
// vault compromise has been cleared. Must be called before the store
// is shared across goroutines.
func (s *Store) SetIntegrityFailureHook(hook func()) {
	s.onIntegrityFailure = hook
}

// StoreTokens writes the access token to memory and seals the refresh
// token (and optional customer payload) into the vault blob.
func (s *Store) StoreTokens(ctx context.Context, bundle Bundle, customerData []byte) error {
	refreshCT, err := s.keys.Seal([]byte(bundle.RefreshToken))
	if err != nil {
		return err
	}

	var customerCT []byte
	if len(customerData) > 0 {
		if customerCT, err = s.keys.Seal(customerData); err != nil {
			return err
		}
	}

	record := vaultRecord{
		RefreshCiphertext:  refreshCT,
		CustomerCiphertext: customerCT,
		IntegrityTag:       s.keys.Tag(refreshCT, customerCT),
	}
	blob, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.backend.PutBlob(ctx, blob); err != nil {
		return err
	}

	s.mu.Lock()
	s.access = bundle.AccessToken
	s.tokenType = bundle.TokenType
	s.expiresAt = clampExpiry(bundle)
	s.mu.Unlock()

	return nil
}

// Rotate replaces the credential bundle after a refresh, preserving any
// sealed customer payload already in the vault.
func (s *Store) Rotate(ctx context.Context, bundle Bundle) error {
	customerData, _ := s.GetCustomerData(ctx)
	return s.StoreTokens(ctx, bundle, customerData)
}

// SetCustomerData re-seals the vault with a new customer payload,
// keeping the current credential bundle.
func (s *Store) SetCustomerData(ctx context.Context, data []byte) error {
	refresh, ok := s.GetRefreshToken(ctx)
	if !ok {
		return ErrNoTokens
	}

	s.mu.RLock()
	bundle := Bundle{
		AccessToken:  s.access,
		RefreshToken: refresh,
		ExpiresAt:    s.expiresAt,
		TokenType:    s.tokenType,
	}
	s.mu.RUnlock()

	return s.StoreTokens(ctx, bundle, data)
}

// GetAccessToken returns the in-memory access token.
func (s *Store) GetAccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.access != ""
}

// TokenType returns the bundle's token type, defaulting to "Bearer".
func (s *Store) TokenType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokenType == "" {
		return "Bearer"
	}
	return s.tokenType
}

// GetRefreshToken decrypts the refresh token from the vault. It fails
// closed: a missing blob, an integrity mismatch, or a decryption error
// all yield (_, false), and a compromised vault is cleared before
// returning.
func (s *Store) GetRefreshToken(ctx context.Context) (string, bool) {
	record, ok := s.loadVerified(ctx)
	if !ok {
		return "", false
	}

	plaintext, err := s.keys.Open(record.RefreshCiphertext)
	if err != nil {
		s.logger.Warn("refresh token decrypt failed, clearing vault")
		s.failClosed(ctx)
		return "", false
	}
	return string(plaintext), true
}

// GetCustomerData decrypts the sealed customer payload, if any.
func (s *Store) GetCustomerData(ctx context.Context) ([]byte, bool) {
	record, ok := s.loadVerified(ctx)
	if !ok || len(record.CustomerCiphertext) == 0 {
		return nil, false
	}

	plaintext, err := s.keys.Open(record.CustomerCiphertext)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

// IsTokenExpired reports whether the access token has reached its
// expiry. An absent token counts as expired.
func (s *Store) IsTokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.access == "" {
		return true
	}
	return !time.Now().Before(s.expiresAt)
}

// IsTokenExpiringSoon reports whether less than window remains before
// expiry.
func (s *Store) IsTokenExpiringSoon(window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.access == "" {
		return true
	}
	return time.Until(s.expiresAt) < window
}

// ExpiresAt returns the access token expiry instant.
func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// ValidateIntegrity recomputes the vault tag and compares it. A
// mismatch is treated as storage compromise: the vault is cleared and
// false is returned. An absent vault is trivially intact.
func (s *Store) ValidateIntegrity(ctx context.Context) bool {
	blob, err := s.backend.GetBlob(ctx)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return true
	}
	if err != nil {
		s.logger.Warn("vault read failed during integrity check", "error", err)
		return false
	}

	var record vaultRecord
	if err := json.Unmarshal(blob, &record); err != nil {
		s.failClosed(ctx)
		return false
	}
	if !s.keys.VerifyTag(record.IntegrityTag, record.RefreshCiphertext, record.CustomerCiphertext) {
		s.failClosed(ctx)
		return false
	}
	return true
}

// ClearTokens wipes the in-memory token and the vault blob. It is
// idempotent and safe to call when nothing is stored.
func (s *Store) ClearTokens(ctx context.Context) {
	s.mu.Lock()
	s.access = ""
	s.tokenType = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if err := s.backend.DeleteBlob(ctx); err != nil {
		s.logger.Warn("vault delete failed", "error", err)
	}
}

// loadVerified reads the vault blob and verifies its tag, failing
// closed on any anomaly.
func (s *Store) loadVerified(ctx context.Context) (vaultRecord, bool) {
	var record vaultRecord

	blob, err := s.backend.GetBlob(ctx)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return record, false
	}
	if err != nil {
		s.logger.Warn("vault read failed", "error", err)
		return record, false
	}

	if err := json.Unmarshal(blob, &record); err != nil {
		s.logger.Warn("vault blob corrupt, clearing")
		s.failClosed(ctx)
		return record, false
	}
	if !s.keys.VerifyTag(record.IntegrityTag, record.RefreshCiphertext, record.CustomerCiphertext) {
		s.logger.Warn("vault integrity tag mismatch, clearing")
		s.failClosed(ctx)
		return record, false
	}
	return record, true
}

func (s *Store) failClosed(ctx context.Context) {
	s.ClearTokens(ctx)
	if s.onIntegrityFailure != nil {
		s.onIntegrityFailure()
	}
}

// clampExpiry returns the bundle expiry, clamped to the access token's
// own exp claim when the token is a JWT whose exp is earlier. The
// expiry is never extended past what the bundle declares.
func clampExpiry(bundle Bundle) time.Time {
	expiresAt := bundle.ExpiresAt

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(bundle.AccessToken, claims); err != nil {
		return expiresAt
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return expiresAt
	}
	if exp.Time.Before(expiresAt) {
		return exp.Time
	}
	return expiresAt
}
