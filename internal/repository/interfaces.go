package repository

import (
	"context"
	"time"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// JobRepository manages the fetch job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next queued job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// ListPending returns all queued jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// PruneFinished drops finished jobs last updated before cutoff.
	PruneFinished(ctx context.Context, cutoff time.Time) (int, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// HistoryRepository keeps a record of finished requests.
type HistoryRepository interface {
	// Record appends a finished request.
	Record(ctx context.Context, entry domain.HistoryEntry) error

	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)

	// Summary aggregates outcomes over all recorded requests.
	Summary(ctx context.Context) (*HistorySummary, error)

	// Close releases underlying resources.
	Close() error
}

// HistorySummary counts recorded requests by outcome.
type HistorySummary struct {
	Total      int   `json:"total"`
	Attached   int   `json:"attached"`
	HostedLink int   `json:"hosted_link"`
	Failed     int   `json:"failed"`
	BytesSent  int64 `json:"bytes_sent"`
}

// add folds one entry into the summary.
func (s *HistorySummary) add(e domain.HistoryEntry) {
	s.Total++
	switch e.Outcome {
	case domain.OutcomeAttached:
		s.Attached++
		s.BytesSent += e.SizeBytes
	case domain.OutcomeHostedLink:
		s.HostedLink++
		s.BytesSent += e.SizeBytes
	case domain.OutcomeFailed:
		s.Failed++
	}
}
