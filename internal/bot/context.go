// Package bot adapts Discord slash commands to the fetch service.
package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/iconidentify/tubefetch/internal/delivery"
	"github.com/iconidentify/tubefetch/internal/domain"
)

// Submitter queues a fetch request for a worker.
type Submitter interface {
	Submit(ctx context.Context, req domain.DownloadRequest, sink delivery.Sink) (*domain.Job, error)
}

// FormatLister describes the qualities available for a URL.
type FormatLister interface {
	Formats(ctx context.Context, url string) (string, error)
}

// BotContext carries everything command handlers need. It is built once at
// startup and shared by every interaction.
type BotContext struct {
	Logger  *slog.Logger
	Queue   Submitter
	Formats FormatLister

	// GuildID scopes command registration to one server. Empty registers
	// the commands globally.
	GuildID string

	// FormatsTimeout bounds a /formats lookup.
	FormatsTimeout time.Duration
}
