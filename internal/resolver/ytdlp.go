package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/iconidentify/tubefetch/internal/config"
	"github.com/iconidentify/tubefetch/internal/domain"
)

// outputTemplate names files after the video; the request directory keeps
// concurrent downloads of the same title apart.
const outputTemplate = "%(title).80B [%(id)s].%(ext)s"

// progressInterval throttles progress callbacks from yt-dlp.
const progressInterval = 2 * time.Second

// YTDLPResolver implements Resolver by running the yt-dlp executable.
type YTDLPResolver struct {
	binary         string
	resolveTimeout time.Duration
	logger         *slog.Logger
}

// NewYTDLPResolver creates a resolver. It fails if yt-dlp cannot be found.
func NewYTDLPResolver(cfg config.ResolverConfig, logger *slog.Logger) (*YTDLPResolver, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "yt-dlp"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not found: %w", err)
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 60 * time.Second
	}

	return &YTDLPResolver{
		binary:         path,
		resolveTimeout: cfg.ResolveTimeout,
		logger:         logger,
	}, nil
}

func (r *YTDLPResolver) command() *ytdlp.Command {
	return ytdlp.New().
		SetExecutable(r.binary).
		NoPlaylist().
		NoWarnings()
}

// Resolve runs yt-dlp in JSON dump mode and maps the formats it reports.
func (r *YTDLPResolver) Resolve(ctx context.Context, url string) (*domain.MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()

	start := time.Now()
	res, err := r.command().DumpSingleJSON().Run(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrResolution, failureDetail(res, err))
	}

	info, err := parseInfo([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved video",
		"url", url,
		"title", info.Title,
		"renditions", len(info.Renditions),
		"subtitles", len(info.Subtitles),
		"duration", time.Since(start),
	)
	return info, nil
}

// Download fetches the selected rendition into spec.OutputDir, merged to mp4.
func (r *YTDLPResolver) Download(ctx context.Context, spec DownloadSpec) (*domain.DownloadResult, error) {
	if spec.OutputDir == "" {
		return nil, fmt.Errorf("%w: no output directory", domain.ErrDownload)
	}
	selector := spec.FormatSelector
	if selector == "" {
		selector = domain.SelectorBest
	}

	cmd := r.command().
		Format(selector).
		MergeOutputFormat("mp4").
		RestrictFilenames().
		ForceOverwrites().
		Output(filepath.Join(spec.OutputDir, outputTemplate))

	if spec.SubtitleLang != "" {
		cmd = cmd.WriteSubs().SubLangs(spec.SubtitleLang).SubFormat("vtt/srt/best")
	}

	if spec.OnProgress != nil {
		cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			spec.OnProgress(Progress{
				DownloadedBytes: int64(update.DownloadedBytes),
				TotalBytes:      int64(update.TotalBytes),
			})
		})
	}

	res, err := cmd.Run(ctx, spec.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrDownload, failureDetail(res, err))
	}

	videoPath, size, err := findVideo(spec.OutputDir)
	if err != nil {
		return nil, err
	}

	return &domain.DownloadResult{
		VideoPath: videoPath,
		SizeBytes: size,
	}, nil
}

// subtitleExts are sidecar files yt-dlp may leave next to the video.
var subtitleExts = map[string]bool{
	".vtt": true, ".srt": true, ".ass": true, ".ssa": true,
	".ttml": true, ".srv1": true, ".srv2": true, ".srv3": true, ".json3": true,
}

// leftoverExts are incomplete or intermediate files.
var leftoverExts = map[string]bool{
	".part": true, ".ytdl": true, ".temp": true, ".tmp": true,
}

// findVideo returns the largest media file in dir. The directory belongs to a
// single request, so whatever yt-dlp produced there is the result.
func findVideo(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("%w: read output dir: %v", domain.ErrDownload, err)
	}

	var (
		bestPath string
		bestSize int64 = -1
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if subtitleExts[ext] || leftoverExts[ext] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			bestPath = filepath.Join(dir, e.Name())
			bestSize = info.Size()
		}
	}

	if bestPath == "" {
		return "", 0, fmt.Errorf("%w: yt-dlp produced no file", domain.ErrDownload)
	}
	return bestPath, bestSize, nil
}

// failureDetail extracts the last stderr line yt-dlp wrote, which carries the
// "ERROR: ..." reason.
func failureDetail(res *ytdlp.Result, err error) string {
	if res != nil {
		lines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			line := strings.TrimSpace(lines[i])
			if line != "" {
				return strings.TrimPrefix(line, "ERROR: ")
			}
		}
	}
	return err.Error()
}
