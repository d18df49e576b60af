// Package delivery hands finished downloads to the chat platform, either as an
// attachment or, for files above the attachment limit, as a hosted link.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/tubefetch/internal/domain"
	"github.com/iconidentify/tubefetch/internal/upload"
)

// Sink is the chat-side receiver of a request's messages.
type Sink interface {
	// Progress reports an intermediate status. Failures are not fatal.
	Progress(ctx context.Context, text string) error
	// Deliver sends the terminal message.
	Deliver(ctx context.Context, msg domain.Message) error
}

// Uploader hosts files too large to attach.
type Uploader interface {
	Upload(ctx context.Context, path string, size int64) (*upload.Result, error)
}

// Outcome is how a delivery ended. Err is set only for OutcomeFailed.
type Outcome struct {
	Kind    domain.OutcomeKind
	Link    string
	Backend string
	Expiry  domain.Expiry
	Err     error
}

// Failed reports whether nothing reached the user.
func (o Outcome) Failed() bool {
	return o.Kind == domain.OutcomeFailed
}

func failed(err error) Outcome {
	return Outcome{Kind: domain.OutcomeFailed, Err: err}
}

// Pipeline routes a download to the chat or to the upload chain.
type Pipeline struct {
	chatLimit int64
	uploader  Uploader
	logger    *slog.Logger
}

// NewPipeline creates a pipeline. Files smaller than chatLimit are attached.
func NewPipeline(chatLimit int64, uploader Uploader, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		chatLimit: chatLimit,
		uploader:  uploader,
		logger:    logger,
	}
}

// ChatLimit returns the attachment size limit.
func (p *Pipeline) ChatLimit() int64 {
	return p.chatLimit
}

// Deliver sends result to sink. When subtitleLang is set the matching
// subtitle file is attached if one was downloaded. The result's files are
// removed before Deliver returns, whatever the outcome. On failure nothing
// terminal has been sent and the caller owns the error message.
func (p *Pipeline) Deliver(ctx context.Context, result *domain.DownloadResult, subtitleLang string, sink Sink) Outcome {
	if result == nil || result.VideoPath == "" {
		return failed(fmt.Errorf("%w: no file to deliver", domain.ErrDownload))
	}

	subtitle := result.SubtitlePath
	if subtitle == "" {
		subtitle = FindSubtitle(result.VideoPath, subtitleLang)
	}
	defer func() {
		if err := Cleanup(append(result.Paths(), subtitle)...); err != nil {
			p.logger.Warn("cleanup failed", "path", result.VideoPath, "error", err)
		}
	}()

	if result.SizeBytes < p.chatLimit {
		return p.attach(ctx, result, subtitle, subtitleLang, sink)
	}
	return p.host(ctx, result, subtitle, subtitleLang, sink)
}

func (p *Pipeline) attach(ctx context.Context, result *domain.DownloadResult, subtitle, lang string, sink Sink) Outcome {
	msg := domain.Message{
		Files: []domain.Attachment{attachment(result.VideoPath)},
	}
	if subtitle != "" {
		msg.Files = append(msg.Files, attachment(subtitle))
	} else if lang != "" {
		msg.Text = fmt.Sprintf("No %s subtitles were available.", lang)
	}

	if err := sink.Deliver(ctx, msg); err != nil {
		p.logger.Warn("attachment rejected",
			"size", humanize.IBytes(uint64(result.SizeBytes)),
			"error", err,
		)
		return failed(fmt.Errorf("%w: %v", domain.ErrDelivery, err))
	}
	return Outcome{Kind: domain.OutcomeAttached}
}

func (p *Pipeline) host(ctx context.Context, result *domain.DownloadResult, subtitle, lang string, sink Sink) Outcome {
	if p.uploader == nil {
		return failed(&domain.SizeLimitError{Size: result.SizeBytes, Limit: p.chatLimit})
	}

	size := humanize.IBytes(uint64(result.SizeBytes))
	if err := sink.Progress(ctx, fmt.Sprintf("File is %s, too large to attach. Uploading to a file host...", size)); err != nil {
		p.logger.Debug("progress update failed", "error", err)
	}

	res, err := p.uploader.Upload(ctx, result.VideoPath, result.SizeBytes)
	if err != nil {
		if res != nil {
			p.logger.Warn("hosting failed", "size", size, "attempts", res.Summary(), "error", err)
		}
		return failed(err)
	}
	p.logger.Debug("hosting succeeded", "backend", res.Backend, "attempts", res.Summary())

	msg := domain.Message{
		Text: fmt.Sprintf("Video (%s) uploaded to %s, %s:", size, res.Backend, res.Expiry),
		Link: res.Link,
	}
	// subtitles are tiny; send them along when they fit
	if subtitle != "" && fileSize(subtitle) < p.chatLimit {
		msg.Files = []domain.Attachment{attachment(subtitle)}
	} else if lang != "" && subtitle == "" {
		msg.Text += fmt.Sprintf(" (no %s subtitles were available)", lang)
	}

	if err := sink.Deliver(ctx, msg); err != nil {
		return failed(fmt.Errorf("%w: %v", domain.ErrDelivery, err))
	}
	return Outcome{
		Kind:    domain.OutcomeHostedLink,
		Link:    res.Link,
		Backend: res.Backend,
		Expiry:  res.Expiry,
	}
}

func attachment(path string) domain.Attachment {
	return domain.Attachment{Name: filepath.Base(path), Path: path}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
