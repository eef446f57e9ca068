package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) Backend {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, "test")
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	return map[string]Backend{
		"memory": NewMemory(),
		"redis":  newTestRedis(t),
	}
}

func TestBlobRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := backend.GetBlob(ctx); !errors.Is(err, ErrBlobNotFound) {
				t.Fatalf("empty backend should report ErrBlobNotFound, got %v", err)
			}

			if err := backend.PutBlob(ctx, []byte("sealed-vault")); err != nil {
				t.Fatalf("PutBlob failed: %v", err)
			}
			got, err := backend.GetBlob(ctx)
			if err != nil {
				t.Fatalf("GetBlob failed: %v", err)
			}
			if string(got) != "sealed-vault" {
				t.Fatalf("blob mismatch: %q", got)
			}

			if err := backend.PutBlob(ctx, []byte("replaced")); err != nil {
				t.Fatalf("PutBlob replace failed: %v", err)
			}
			got, err = backend.GetBlob(ctx)
			if err != nil {
				t.Fatalf("GetBlob after replace failed: %v", err)
			}
			if string(got) != "replaced" {
				t.Fatalf("blob not replaced: %q", got)
			}
		})
	}
}

func TestDeleteBlobIdempotent(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := backend.DeleteBlob(ctx); err != nil {
				t.Fatalf("deleting absent blob should not error: %v", err)
			}

			if err := backend.PutBlob(ctx, []byte("x")); err != nil {
				t.Fatalf("PutBlob failed: %v", err)
			}
			if err := backend.DeleteBlob(ctx); err != nil {
				t.Fatalf("DeleteBlob failed: %v", err)
			}
			if _, err := backend.GetBlob(ctx); !errors.Is(err, ErrBlobNotFound) {
				t.Fatalf("deleted blob should be gone, got %v", err)
			}
		})
	}
}

func TestAppendEventCapEviction(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const max = 5

			for i := 0; i < max+3; i++ {
				entry := fmt.Appendf(nil, "event-%d", i)
				if err := backend.AppendEvent(ctx, entry, max); err != nil {
					t.Fatalf("AppendEvent failed: %v", err)
				}
			}

			entries, err := backend.ListEvents(ctx, 0)
			if err != nil {
				t.Fatalf("ListEvents failed: %v", err)
			}
			if len(entries) != max {
				t.Fatalf("expected %d retained entries, got %d", max, len(entries))
			}
			// Newest first, oldest evicted.
			if string(entries[0]) != "event-7" {
				t.Fatalf("expected newest entry first, got %q", entries[0])
			}
			if string(entries[max-1]) != "event-3" {
				t.Fatalf("expected oldest surviving entry last, got %q", entries[max-1])
			}
		})
	}
}

func TestListEventsLimit(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				entry := fmt.Appendf(nil, "event-%d", i)
				if err := backend.AppendEvent(ctx, entry, 100); err != nil {
					t.Fatalf("AppendEvent failed: %v", err)
				}
			}

			entries, err := backend.ListEvents(ctx, 3)
			if err != nil {
				t.Fatalf("ListEvents failed: %v", err)
			}
			if len(entries) != 3 {
				t.Fatalf("expected 3 entries, got %d", len(entries))
			}
			if string(entries[0]) != "event-9" || string(entries[2]) != "event-7" {
				t.Fatalf("unexpected window: %q .. %q", entries[0], entries[2])
			}
		})
	}
}

func TestClearEvents(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := backend.AppendEvent(ctx, []byte("one"), 10); err != nil {
				t.Fatalf("AppendEvent failed: %v", err)
			}
			if err := backend.ClearEvents(ctx); err != nil {
				t.Fatalf("ClearEvents failed: %v", err)
			}
			entries, err := backend.ListEvents(ctx, 0)
			if err != nil {
				t.Fatalf("ListEvents failed: %v", err)
			}
			if len(entries) != 0 {
				t.Fatalf("expected empty ledger, got %d entries", len(entries))
			}
		})
	}
}
