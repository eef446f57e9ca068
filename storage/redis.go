package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	vaultSuffix  = ":vault"
	eventsSuffix = ":events"
)

// appendEventScript appends one serialized event and trims the list to
// its cap in a single atomic step, so a crash between append and trim
// can never leave the ledger over its bound.
const appendEventScript = `
redis.call("RPUSH", KEYS[1], ARGV[1])
local max = tonumber(ARGV[2])
if max > 0 then
  redis.call("LTRIM", KEYS[1], -max, -1)
end
return redis.call("LLEN", KEYS[1])
`

var appendEventLua = redis.NewScript(appendEventScript)

// Redis persists the vault blob and event ledger in Redis under a
// fixed key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client with the given key prefix. An empty prefix
// defaults to "ac".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "ac"
	}
	return &Redis{client: client, prefix: prefix}
}

// GetBlob returns the vault blob, or ErrBlobNotFound.
func (r *Redis) GetBlob(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+vaultSuffix).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return data, nil
}

// PutBlob replaces the vault blob.
func (r *Redis) PutBlob(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.prefix+vaultSuffix, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteBlob removes the vault blob. Absent blobs are not an error.
func (r *Redis) DeleteBlob(ctx context.Context) error {
	if err := r.client.Del(ctx, r.prefix+vaultSuffix).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// AppendEvent appends entry and trims the ledger to max atomically.
func (r *Redis) AppendEvent(ctx context.Context, entry []byte, max int) error {
	err := appendEventLua.Run(ctx, r.client,
		[]string{r.prefix + eventsSuffix},
		entry, max,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// ListEvents returns up to limit entries, newest first.
func (r *Redis) ListEvents(ctx context.Context, limit int) ([][]byte, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := r.client.LRange(ctx, r.prefix+eventsSuffix, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	// Stored oldest first; callers get newest first.
	entries := make([][]byte, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		entries = append(entries, []byte(raw[i]))
	}
	return entries, nil
}

// ClearEvents removes the entire ledger.
func (r *Redis) ClearEvents(ctx context.Context) error {
	if err := r.client.Del(ctx, r.prefix+eventsSuffix).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}
