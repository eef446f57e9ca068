package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. It is the default when no Redis
// client is supplied and the standard test double. Contents do not
// survive the process.
type Memory struct {
	mu     sync.Mutex
	blob   []byte
	hasOne bool
	events [][]byte
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{}
}

// GetBlob returns the vault blob, or ErrBlobNotFound.
func (m *Memory) GetBlob(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasOne {
		return nil, ErrBlobNotFound
	}
	out := make([]byte, len(m.blob))
	copy(out, m.blob)
	return out, nil
}

// PutBlob replaces the vault blob.
func (m *Memory) PutBlob(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blob = make([]byte, len(data))
	copy(m.blob, data)
	m.hasOne = true
	return nil
}

// DeleteBlob removes the vault blob.
func (m *Memory) DeleteBlob(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blob = nil
	m.hasOne = false
	return nil
}

// AppendEvent appends entry and evicts oldest entries beyond max.
func (m *Memory) AppendEvent(_ context.Context, entry []byte, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(entry))
	copy(stored, entry)
	m.events = append(m.events, stored)
	if max > 0 && len(m.events) > max {
		m.events = m.events[len(m.events)-max:]
	}
	return nil
}

// ListEvents returns up to limit entries, newest first.
func (m *Memory) ListEvents(_ context.Context, limit int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.events)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		entry := m.events[len(m.events)-1-i]
		cp := make([]byte, len(entry))
		copy(cp, entry)
		out = append(out, cp)
	}
	return out, nil
}

// ClearEvents removes every retained entry.
func (m *Memory) ClearEvents(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = nil
	return nil
}
