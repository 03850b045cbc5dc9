package session

import (
	"context"
	"sync"
)

// MemoryBackend keeps sessions in a map for the lifetime of the process.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*Record
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]*Record),
	}
}

// Get returns a copy of the stored record.
func (b *MemoryBackend) Get(_ context.Context, id string) (*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Insert stores rec unless its ID is already present.
func (b *MemoryBackend) Insert(_ context.Context, rec *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.sessions[rec.ID]; exists {
		return ErrExists
	}
	b.sessions[rec.ID] = rec.Clone()
	return nil
}

// Put inserts or replaces rec.
func (b *MemoryBackend) Put(_ context.Context, rec *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessions[rec.ID] = rec.Clone()
	return nil
}

// Counts returns the number of sessions per state.
func (b *MemoryBackend) Counts(_ context.Context) (map[State]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[State]int)
	for _, rec := range b.sessions {
		counts[rec.State]++
	}
	return counts, nil
}

// Close is a no-op.
func (b *MemoryBackend) Close() error {
	return nil
}
