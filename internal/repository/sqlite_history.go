package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// SQLiteHistoryRepository persists request history in a SQLite database.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository opens (or creates) the database at path.
func NewSQLiteHistoryRepository(path string) (*SQLiteHistoryRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			request_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT,
			requested_quality TEXT,
			resolved_quality TEXT,
			outcome TEXT NOT NULL,
			backend TEXT,
			link TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_finished_at ON history(finished_at);
		CREATE INDEX IF NOT EXISTS idx_history_outcome ON history(outcome);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteHistoryRepository{db: db}, nil
}

// Record inserts an entry. Recording the same request twice keeps the latest.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, e domain.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO history (
			request_id, url, title, requested_quality, resolved_quality,
			outcome, backend, link, size_bytes, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.RequestID.String(), e.URL, e.Title, e.RequestedQuality, e.ResolvedQuality,
		string(e.Outcome), e.Backend, e.Link, e.SizeBytes, e.Error,
		e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (r *SQLiteHistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT request_id, url, title, requested_quality, resolved_quality,
			outcome, backend, link, size_bytes, error, started_at, finished_at
		FROM history
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e                   domain.HistoryEntry
			id, outcome         string
			title, requested    sql.NullString
			resolved, backend   sql.NullString
			link, errMsg        sql.NullString
			startedMs, finished int64
		)
		if err := rows.Scan(&id, &e.URL, &title, &requested, &resolved,
			&outcome, &backend, &link, &e.SizeBytes, &errMsg, &startedMs, &finished); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.RequestID = domain.RequestID(id)
		e.Outcome = domain.OutcomeKind(outcome)
		e.Title = title.String
		e.RequestedQuality = requested.String
		e.ResolvedQuality = resolved.String
		e.Backend = backend.String
		e.Link = link.String
		e.Error = errMsg.String
		e.StartedAt = time.UnixMilli(startedMs)
		e.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}

// Summary aggregates outcomes over the whole table.
func (r *SQLiteHistoryRepository) Summary(ctx context.Context) (*HistorySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM history
		GROUP BY outcome
	`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	s := &HistorySummary{}
	for rows.Next() {
		var (
			outcome string
			count   int
			bytes   int64
		)
		if err := rows.Scan(&outcome, &count, &bytes); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Total += count
		switch domain.OutcomeKind(outcome) {
		case domain.OutcomeAttached:
			s.Attached = count
			s.BytesSent += bytes
		case domain.OutcomeHostedLink:
			s.HostedLink = count
			s.BytesSent += bytes
		case domain.OutcomeFailed:
			s.Failed = count
		}
	}
	return s, rows.Err()
}

// Close closes the database.
func (r *SQLiteHistoryRepository) Close() error {
	return r.db.Close()
}
