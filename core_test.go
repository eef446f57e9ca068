package authcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vitrin-labs/authcore/fingerprint"
	"github.com/vitrin-labs/authcore/issuer"
	"github.com/vitrin-labs/authcore/tokenstore"
)

// fakeIssuer is an in-process TokenIssuer with observable counters.
type fakeIssuer struct {
	mfaRequired  bool
	loginErr     error
	refreshErr   error
	refreshDelay time.Duration
	ttl          time.Duration

	logins    atomic.Int64
	refreshes atomic.Int64
}

func (f *fakeIssuer) bundleTTL() time.Duration {
	if f.ttl == 0 {
		return time.Hour
	}
	return f.ttl
}

func (f *fakeIssuer) Login(_ context.Context, creds issuer.Credentials) (*issuer.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	n := f.logins.Add(1)
	return &issuer.LoginResult{
		Bundle: tokenstore.Bundle{
			AccessToken:  fmt.Sprintf("access-%d", n),
			RefreshToken: fmt.Sprintf("refresh-%d", n),
			ExpiresAt:    time.Now().Add(f.bundleTTL()),
			TokenType:    "Bearer",
		},
		UserID:      "user-" + creds.Username,
		MFARequired: f.mfaRequired,
	}, nil
}

func (f *fakeIssuer) Refresh(_ context.Context, _ string) (*tokenstore.Bundle, error) {
	if f.refreshDelay > 0 {
		time.Sleep(f.refreshDelay)
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	n := f.refreshes.Add(1)
	return &tokenstore.Bundle{
		AccessToken:  fmt.Sprintf("rotated-%d", n),
		RefreshToken: fmt.Sprintf("refresh-rotated-%d", n),
		ExpiresAt:    time.Now().Add(time.Hour),
		TokenType:    "Bearer",
	}, nil
}

// fakeMFA accepts exactly one code.
type fakeMFA struct {
	accept string
	err    error

	mu    sync.Mutex
	codes []string
}

func (f *fakeMFA) VerifyCode(_ context.Context, _ string, code string) (bool, error) {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return code == f.accept, nil
}

func testSignals() []fingerprint.Signal {
	return []fingerprint.Signal{
		{Key: "platform", Value: "linux"},
		{Key: "arch", Value: "amd64"},
		{Key: "timezone", Value: "UTC"},
		{Key: "locale", Value: "en_US"},
		{Key: "screen", Value: "1920x1080"},
		{Key: "concurrency", Value: "8"},
		{Key: "render", Value: "gpu-77"},
		{Key: "fonts", Value: "f-aa"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCore(t *testing.T, fi *fakeIssuer, mutate ...func(*Builder)) *Core {
	t.Helper()

	b := New().
		WithIssuer(fi).
		WithSignalSource(fingerprint.StaticSignalSource(testSignals())).
		WithLogger(testLogger()).
		WithMetricsEnabled(true)
	for _, m := range mutate {
		m(b)
	}

	core, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(core.Close)
	return core
}

func mustLogin(t *testing.T, core *Core) *LoginResult {
	t.Helper()

	res, err := core.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.MFARequired {
		t.Fatal("unexpected MFA requirement")
	}
	return res
}

func TestBuildRequiresIssuer(t *testing.T) {
	if _, err := New().WithLogger(testLogger()).Build(); err == nil {
		t.Fatal("expected error without an issuer")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithIssuer(&fakeIssuer{}).WithLogger(testLogger())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.MaxInactivity = 0
	if _, err := New().WithConfig(cfg).WithIssuer(&fakeIssuer{}).Build(); err == nil {
		t.Fatal("expected validation error for zero MaxInactivity")
	}

	cfg = defaultConfig()
	cfg.Refresh.Timeout = 0
	if _, err := New().WithConfig(cfg).WithIssuer(&fakeIssuer{}).Build(); err == nil {
		t.Fatal("expected validation error for zero refresh timeout")
	}

	cfg = defaultConfig()
	cfg.EventLog.MaxEvents = 0
	if _, err := New().WithConfig(cfg).WithIssuer(&fakeIssuer{}).Build(); err == nil {
		t.Fatal("expected validation error for zero event cap")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	core := newTestCore(t, &fakeIssuer{})
	mustLogin(t, core)

	core.Close()
	core.Close()

	if _, err := core.Login(context.Background(), "alice", "pw"); err != ErrCoreClosed {
		t.Fatalf("expected ErrCoreClosed after shutdown, got %v", err)
	}
}

func TestSecurityEventsSurviveRebuild(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fi := &fakeIssuer{}
	build := func() *Core {
		core, err := New().
			WithIssuer(fi).
			WithRedis(client).
			WithSignalSource(fingerprint.StaticSignalSource(testSignals())).
			WithLogger(testLogger()).
			Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		return core
	}

	core := build()
	mustLogin(t, core)
	core.Close()

	rebuilt := build()
	t.Cleanup(rebuilt.Close)

	events, err := rebuilt.SecurityEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected the ledger to survive the first core")
	}
	if refresh, ok := rebuilt.tokens.GetRefreshToken(context.Background()); !ok || refresh != "refresh-1" {
		t.Fatalf("vault did not survive the rebuild: %q ok=%v", refresh, ok)
	}
}

func TestCheckVaultIntegrity(t *testing.T) {
	core := newTestCore(t, &fakeIssuer{})
	ctx := context.Background()

	if err := core.CheckVaultIntegrity(ctx); err != nil {
		t.Fatalf("empty vault should be intact: %v", err)
	}

	mustLogin(t, core)
	if err := core.CheckVaultIntegrity(ctx); err != nil {
		t.Fatalf("fresh vault should verify: %v", err)
	}

	if err := core.backend.PutBlob(ctx, []byte("tampered")); err != nil {
		t.Fatalf("PutBlob failed: %v", err)
	}
	if err := core.CheckVaultIntegrity(ctx); !errors.Is(err, ErrStorageIntegrity) {
		t.Fatalf("expected ErrStorageIntegrity, got %v", err)
	}

	// Fail-closed: the vault is gone and the compromise is on the
	// ledger.
	if _, ok := core.tokens.GetRefreshToken(ctx); ok {
		t.Fatal("tampered vault still served a refresh token")
	}
	events, err := core.SecurityEvents(ctx, 0)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Warning != nil && e.Warning.Reason == "storage_integrity" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a storage_integrity warning on the ledger")
	}
	if got := core.metrics.Value(MetricStorageIntegrityFailure); got == 0 {
		t.Fatal("expected integrity failure metric")
	}
}

func TestNewDeviceSecret(t *testing.T) {
	a, err := NewDeviceSecret()
	if err != nil {
		t.Fatalf("NewDeviceSecret failed: %v", err)
	}
	b, err := NewDeviceSecret()
	if err != nil {
		t.Fatalf("NewDeviceSecret failed: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-byte secret, got %d", len(a))
	}
	if string(a) == string(b) {
		t.Fatal("secrets must be random")
	}
}

func TestClearSecurityEvents(t *testing.T) {
	core := newTestCore(t, &fakeIssuer{})
	mustLogin(t, core)

	events, err := core.SecurityEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("login should have produced events")
	}

	if err := core.ClearSecurityEvents(context.Background()); err != nil {
		t.Fatalf("ClearSecurityEvents failed: %v", err)
	}
	events, err = core.SecurityEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty ledger, got %d events", len(events))
	}
}
