package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iconidentify/tubefetch/internal/delivery"
	"github.com/iconidentify/tubefetch/internal/domain"
	"github.com/iconidentify/tubefetch/internal/quality"
	"github.com/iconidentify/tubefetch/internal/repository"
	"github.com/iconidentify/tubefetch/internal/resolver"
)

// DefaultSubtitleLang is used when subtitles are wanted without a language.
const DefaultSubtitleLang = "en"

// terminalTimeout bounds the error message sent after a request was cancelled.
const terminalTimeout = 10 * time.Second

// HostingLimits reports the largest file the upload chain can host.
type HostingLimits interface {
	MaxCeiling() int64
}

// FetchService orchestrates one fetch request from URL to delivered message.
type FetchService struct {
	resolver resolver.Resolver
	limits   HostingLimits
	pipeline *delivery.Pipeline
	history  repository.HistoryRepository
	workPath string
	logger   *slog.Logger

	freeSpace func(path string) int64
}

// NewFetchService creates a new fetch service.
func NewFetchService(
	res resolver.Resolver,
	limits HostingLimits,
	pipeline *delivery.Pipeline,
	history repository.HistoryRepository,
	workPath string,
	logger *slog.Logger,
) *FetchService {
	return &FetchService{
		resolver: res,
		limits:   limits,
		pipeline: pipeline,
		history:  history,
		workPath: workPath,
		logger:   logger,

		freeSpace: delivery.FreeSpace,
	}
}

// NewRequest builds a request with a fresh ID.
func NewRequest(url, requestedQuality string, wantSubtitles bool, subtitleLang string) domain.DownloadRequest {
	lang := strings.ToLower(strings.TrimSpace(subtitleLang))
	if wantSubtitles && lang == "" {
		lang = DefaultSubtitleLang
	}
	return domain.DownloadRequest{
		ID:               domain.RequestID(uuid.New().String()),
		URL:              strings.TrimSpace(url),
		RequestedQuality: requestedQuality,
		WantSubtitles:    wantSubtitles,
		SubtitleLang:     lang,
	}
}

// Process runs the request and hands exactly one terminal message to sink:
// the delivered file or link, or an error text. Temporary files are removed
// on every path, including panics and cancellation.
func (s *FetchService) Process(ctx context.Context, req domain.DownloadRequest, sink delivery.Sink) (err error) {
	logger := s.logger.With("request_id", req.ID)
	entry := domain.HistoryEntry{
		RequestID:        req.ID,
		URL:              req.URL,
		RequestedQuality: req.RequestedQuality,
		StartedAt:        time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during fetch", "panic", r, "stack", string(debug.Stack()))
			err = domain.NewFetchError(req.ID, "fetch", fmt.Errorf("%w: %v", domain.ErrInternal, r))
		}
		entry.FinishedAt = time.Now()

		if err != nil {
			entry.Outcome = domain.OutcomeFailed
			entry.Error = err.Error()
			s.sendError(ctx, logger, sink, err)
			logger.Warn("fetch failed", "error", err, "duration", entry.Duration())
		} else {
			logger.Info("fetch completed",
				"outcome", entry.Outcome,
				"quality", entry.ResolvedQuality,
				"size", humanize.IBytes(uint64(entry.SizeBytes)),
				"duration", entry.Duration(),
			)
		}

		s.record(logger, entry)
	}()

	return s.fetch(ctx, logger, req, sink, &entry)
}

// Abandon sends the terminal error for a request that will never be
// processed and records it as failed.
func (s *FetchService) Abandon(ctx context.Context, req domain.DownloadRequest, sink delivery.Sink, err error) {
	logger := s.logger.With("request_id", req.ID)
	now := time.Now()

	s.sendError(ctx, logger, sink, err)
	s.record(logger, domain.HistoryEntry{
		RequestID:        req.ID,
		URL:              req.URL,
		RequestedQuality: req.RequestedQuality,
		Outcome:          domain.OutcomeFailed,
		Error:            err.Error(),
		StartedAt:        now,
		FinishedAt:       now,
	})
}

func (s *FetchService) fetch(ctx context.Context, logger *slog.Logger, req domain.DownloadRequest, sink delivery.Sink, entry *domain.HistoryEntry) error {
	if err := req.Validate(); err != nil {
		return domain.NewFetchError(req.ID, "validate", err)
	}

	logger.Info("resolving video", "url", req.URL, "quality", req.RequestedQuality)
	info, err := s.resolver.Resolve(ctx, req.URL)
	if err != nil {
		return domain.NewFetchError(req.ID, "resolve", err)
	}
	entry.Title = info.Title

	label := quality.Negotiate(req.RequestedQuality, info.Renditions)
	if quality.IsFallback(req.RequestedQuality, label) {
		s.progress(ctx, logger, sink, fmt.Sprintf("Quality %q is not available for this video, using %s instead.",
			strings.TrimSpace(req.RequestedQuality), label))
	}

	ceiling := s.limits.MaxCeiling()
	chatLimit := s.pipeline.ChatLimit()
	decision := quality.Plan(label, info.Renditions, ceiling, chatLimit)
	logger.Debug("download planned",
		"label", label,
		"action", decision.Action.String(),
		"predicted_size", decision.SizeBytes,
		"fallback_hosting", decision.FallbackHosting,
	)

	switch decision.Action {
	case quality.Reject:
		return domain.NewFetchError(req.ID, "plan", decision.Err(quality.EffectiveCeiling(ceiling, chatLimit)))
	case quality.Downgrade:
		s.progress(ctx, logger, sink, fmt.Sprintf("%s would be about %s, above the %s limit. Downloading %s (about %s) instead.",
			label, size(info.Renditions[label].ApproxSize), size(quality.EffectiveCeiling(ceiling, chatLimit)), decision.Label, size(decision.SizeBytes)))
		label = decision.Label
	}
	if decision.FallbackHosting {
		s.progress(ctx, logger, sink, fmt.Sprintf("Expected size is about %s, above the %s attachment limit. The video will be uploaded to a file host.",
			size(decision.SizeBytes), size(chatLimit)))
	}

	req = req.Resolve(label)
	entry.ResolvedQuality = req.ResolvedQuality

	ws, err := delivery.NewWorkspace(s.workPath, req.ID)
	if err != nil {
		return domain.NewFetchError(req.ID, "workspace", err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warn("failed to remove workspace", "dir", ws.Dir(), "error", err)
		}
	}()

	// merging video and audio briefly needs room for both streams and the output
	if need := decision.SizeBytes * 2; need > 0 {
		if free := s.freeSpace(ws.Dir()); free > 0 && need > free {
			return domain.NewFetchError(req.ID, "workspace", fmt.Errorf("%w: need %s, have %s",
				domain.ErrInsufficientSpace, size(need), size(free)))
		}
	}

	subtitleLang := ""
	if req.WantSubtitles {
		subtitleLang = req.SubtitleLang
	}

	s.progress(ctx, logger, sink, fmt.Sprintf("Downloading %s (%s)...", displayTitle(info.Title), label))
	result, err := s.resolver.Download(ctx, resolver.DownloadSpec{
		URL:            req.URL,
		FormatSelector: info.Renditions[label].FormatSelector,
		OutputDir:      ws.Dir(),
		SubtitleLang:   subtitleLang,
		OnProgress:     s.progressReporter(ctx, logger, sink),
	})
	if err != nil {
		return domain.NewFetchError(req.ID, "download", err)
	}
	entry.SizeBytes = result.SizeBytes
	logger.Info("download finished", "path", result.VideoPath, "size", humanize.IBytes(uint64(result.SizeBytes)))

	outcome := s.pipeline.Deliver(ctx, result, subtitleLang, sink)
	if outcome.Failed() {
		return domain.NewFetchError(req.ID, "deliver", outcome.Err)
	}
	entry.Outcome = outcome.Kind
	entry.Backend = outcome.Backend
	entry.Link = outcome.Link

	return nil
}

// Formats lists the renditions and subtitle languages of url, marking how
// each rendition would be delivered.
func (s *FetchService) Formats(ctx context.Context, url string) (string, error) {
	req := domain.DownloadRequest{URL: url}
	if err := req.Validate(); err != nil {
		return "", err
	}

	info, err := s.resolver.Resolve(ctx, strings.TrimSpace(url))
	if err != nil {
		return "", err
	}

	ceiling := s.limits.MaxCeiling()
	chatLimit := s.pipeline.ChatLimit()

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", displayTitle(info.Title))
	for _, label := range info.Renditions.Labels() {
		r := info.Renditions[label]
		switch {
		case !r.HasSize():
			fmt.Fprintf(&b, "- %s\n", label)
		case r.ApproxSize < chatLimit:
			fmt.Fprintf(&b, "- %s: ~%s (attachment)\n", label, size(r.ApproxSize))
		case r.ApproxSize <= ceiling:
			fmt.Fprintf(&b, "- %s: ~%s (hosted link)\n", label, size(r.ApproxSize))
		default:
			fmt.Fprintf(&b, "- %s: ~%s (too large)\n", label, size(r.ApproxSize))
		}
	}

	if langs := info.Subtitles.Languages(); len(langs) > 0 {
		fmt.Fprintf(&b, "Subtitles: %s", strings.Join(langs, ", "))
	} else {
		b.WriteString("Subtitles: none")
	}

	return b.String(), nil
}

func (s *FetchService) progress(ctx context.Context, logger *slog.Logger, sink delivery.Sink, text string) {
	if err := sink.Progress(ctx, text); err != nil {
		logger.Debug("progress update failed", "error", err)
	}
}

// progressReporter posts download progress in steps of 10 percent.
func (s *FetchService) progressReporter(ctx context.Context, logger *slog.Logger, sink delivery.Sink) func(resolver.Progress) {
	var (
		mu   sync.Mutex
		last = -1
	)
	return func(p resolver.Progress) {
		pct := p.Percent()
		if pct < 0 {
			return
		}
		step := int(pct) / 10 * 10

		mu.Lock()
		if step <= last {
			mu.Unlock()
			return
		}
		last = step
		mu.Unlock()

		s.progress(ctx, logger, sink, fmt.Sprintf("Downloading... %d%% of %s", step, size(p.TotalBytes)))
	}
}

// sendError delivers the user-facing text for err. It still works after ctx
// was cancelled so the user learns why the request stopped.
func (s *FetchService) sendError(ctx context.Context, logger *slog.Logger, sink delivery.Sink, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalTimeout)
	defer cancel()

	if sendErr := sink.Deliver(ctx, domain.Message{Text: UserMessage(err)}); sendErr != nil {
		logger.Error("failed to send error message", "error", sendErr)
	}
}

func (s *FetchService) record(logger *slog.Logger, entry domain.HistoryEntry) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.history.Record(ctx, entry); err != nil {
		logger.Warn("failed to record history", "error", err)
	}
}

// UserMessage maps an error to the text shown to the user.
func UserMessage(err error) string {
	var sizeErr *domain.SizeLimitError
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		return "That does not look like a video link. Please send a full http(s) URL."
	case errors.Is(err, domain.ErrQueueFull):
		return "The bot is busy right now. Please try again in a few minutes."
	case errors.Is(err, domain.ErrInsufficientSpace):
		return "The server is low on disk space. Please try a lower quality or try again later."
	case errors.Is(err, domain.ErrResolution):
		return "Could not read that video. Please check the URL and try again."
	case errors.Is(err, domain.ErrDownload):
		return "Failed to download the video. Please check the URL and try again."
	case errors.As(err, &sizeErr):
		if sizeErr.Limit <= 0 {
			return "File too large: no file host is configured for videos this big. Try a lower quality."
		}
		if strings.Contains(err.Error(), quality.ReasonNoFit) {
			return fmt.Sprintf("File too large: no quality of this video fits the %s hosting limit.", size(sizeErr.Limit))
		}
		return fmt.Sprintf("File too large: the video is %s, above the %s hosting limit. Try a lower quality.",
			size(sizeErr.Size), size(sizeErr.Limit))
	case errors.Is(err, domain.ErrUploadExhausted):
		return "The video was downloaded but every file host failed. Try again with a lower quality."
	case errors.Is(err, domain.ErrShuttingDown):
		return "The bot is restarting and dropped this request. Please send it again in a minute."
	case errors.Is(err, domain.ErrDelivery):
		return "The video was downloaded but could not be sent."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long and was stopped."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	default:
		return "Something went wrong while processing the video."
	}
}

func size(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return humanize.IBytes(uint64(n))
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "video"
	}
	return title
}
