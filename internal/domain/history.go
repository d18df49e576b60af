package domain

import (
	"time"
)

// OutcomeKind names how a request ended.
type OutcomeKind string

const (
	OutcomeAttached   OutcomeKind = "attached"
	OutcomeHostedLink OutcomeKind = "hosted_link"
	OutcomeFailed     OutcomeKind = "failed"
)

// HistoryEntry is the persisted record of one finished request.
type HistoryEntry struct {
	RequestID        RequestID   `json:"request_id"`
	URL              string      `json:"url"`
	Title            string      `json:"title,omitempty"`
	RequestedQuality string      `json:"requested_quality"`
	ResolvedQuality  string      `json:"resolved_quality,omitempty"`
	Outcome          OutcomeKind `json:"outcome"`
	Backend          string      `json:"backend,omitempty"`
	Link             string      `json:"link,omitempty"`
	SizeBytes        int64       `json:"size_bytes,omitempty"`
	Error            string      `json:"error,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
}

// Duration returns how long the request took.
func (h HistoryEntry) Duration() time.Duration {
	return h.FinishedAt.Sub(h.StartedAt)
}
