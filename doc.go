// Package authcore implements the client-side session and credential
// lifecycle core: secure at-rest token storage with integrity checking,
// device fingerprinting, session risk scoring, an append-only security
// event ledger, and single-flight coordination of token refresh across
// concurrent requests.
//
// The package is the public surface. It exposes [Core], [Builder],
// [Config], and value types (Session, ValidationResult, RefreshStatus,
// MetricsSnapshot). Storage, sealing, fingerprinting, and the event
// ledger live in sub-packages; cryptographic sealing helpers are under
// internal/ and never exported.
//
// # Architecture boundaries
//
//   - authcore never issues tokens. It stores, validates, and refreshes
//     bundles minted by an external identity service reached through
//     [issuer.TokenIssuer].
//   - The access token lives in process memory only. The refresh token
//     is encrypted before it touches durable storage and is read back
//     fail-closed: a failed integrity check yields an absent token and
//     a wiped vault, never a panic or a stale credential.
//   - All Core methods are safe to call from multiple goroutines after
//     initialization through [Builder.Build].
//
// # Concurrency contract
//
// At most one token refresh is in flight at any time. Callers that hit
// an expired token while a refresh is pending attach to the pending
// operation and observe its outcome under their own context deadline;
// they never start a second refresh.
package authcore
