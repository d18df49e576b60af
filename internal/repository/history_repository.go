package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// defaultHistorySize bounds the in-memory history when no size is given.
const defaultHistorySize = 500

// InMemoryHistoryRepository keeps the most recent entries in a ring buffer.
// It is used when no history database is configured.
type InMemoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry
	head    int // next write position
	count   int
	summary HistorySummary
}

// NewInMemoryHistoryRepository creates a ring buffer holding size entries.
func NewInMemoryHistoryRepository(size int) *InMemoryHistoryRepository {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &InMemoryHistoryRepository{
		entries: make([]domain.HistoryEntry, size),
	}
}

// Record appends an entry, overwriting the oldest once full.
func (r *InMemoryHistoryRepository) Record(ctx context.Context, entry domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = entry
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
	r.summary.add(entry)

	return nil
}

// List returns up to limit entries, newest first.
func (r *InMemoryHistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.count {
		limit = r.count
	}

	result := make([]domain.HistoryEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.head - 1 - i + len(r.entries)) % len(r.entries)
		result = append(result, r.entries[idx])
	}

	return result, nil
}

// Summary returns outcome counts since startup, including entries already
// evicted from the buffer.
func (r *InMemoryHistoryRepository) Summary(ctx context.Context) (*HistorySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.summary
	return &s, nil
}

// Close is a no-op.
func (r *InMemoryHistoryRepository) Close() error {
	return nil
}
