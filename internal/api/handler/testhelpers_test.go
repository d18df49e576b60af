package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/iconidentify/tubefetch/internal/domain"
	"github.com/iconidentify/tubefetch/internal/repository"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	stats    *repository.QueueStats
	statsErr error
	pending  []*domain.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error { return nil }

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error { return nil }

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	return m.pending, nil
}

func (m *mockJobRepository) PruneFinished(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// mockHistoryRepository is a test implementation of repository.HistoryRepository.
type mockHistoryRepository struct {
	entries    []domain.HistoryEntry
	lastLimit  int
	listErr    error
	summary    *repository.HistorySummary
	summaryErr error
}

func (m *mockHistoryRepository) Record(ctx context.Context, entry domain.HistoryEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	m.lastLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit > 0 && limit < len(m.entries) {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

func (m *mockHistoryRepository) Summary(ctx context.Context) (*repository.HistorySummary, error) {
	if m.summaryErr != nil {
		return nil, m.summaryErr
	}
	if m.summary == nil {
		return &repository.HistorySummary{}, nil
	}
	return m.summary, nil
}

func (m *mockHistoryRepository) Close() error { return nil }
