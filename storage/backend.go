// Package storage defines the durable persistence boundary of the
// core: one namespaced blob holding the encrypted credential vault and
// one bounded list holding serialized security events, newest last.
package storage

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when no vault blob has been stored.
var ErrBlobNotFound = errors.New("vault blob not found")

// ErrBackendUnavailable is returned when the backend cannot be reached.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// Backend is the durable storage used by the token store and the
// security event ledger. Implementations must be safe for concurrent
// use.
type Backend interface {
	// GetBlob returns the stored vault blob, or ErrBlobNotFound.
	GetBlob(ctx context.Context) ([]byte, error)
	// PutBlob replaces the vault blob.
	PutBlob(ctx context.Context, data []byte) error
	// DeleteBlob removes the vault blob. Deleting an absent blob is
	// not an error.
	DeleteBlob(ctx context.Context) error

	// AppendEvent appends entry to the event list and evicts the
	// oldest entries beyond max. Append and trim are atomic.
	AppendEvent(ctx context.Context, entry []byte, max int) error
	// ListEvents returns up to limit entries, newest first. A limit
	// <= 0 returns all retained entries.
	ListEvents(ctx context.Context, limit int) ([][]byte, error)
	// ClearEvents removes every retained entry.
	ClearEvents(ctx context.Context) error
}
