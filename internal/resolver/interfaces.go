package resolver

import (
	"context"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// Resolver enumerates and downloads renditions of a video URL.
type Resolver interface {
	// Resolve lists renditions and subtitle tracks without downloading.
	Resolve(ctx context.Context, url string) (*domain.MediaInfo, error)

	// Download fetches one rendition into spec.OutputDir.
	Download(ctx context.Context, spec DownloadSpec) (*domain.DownloadResult, error)
}

// DownloadSpec describes a single download.
type DownloadSpec struct {
	URL            string
	FormatSelector string
	// OutputDir must be owned by the request; it is scanned for the result.
	OutputDir string
	// SubtitleLang requests one subtitle track alongside the video when set.
	SubtitleLang string
	OnProgress   func(Progress)
}

// Progress is a download progress report.
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
}

// Percent returns completion in the range 0-100, or -1 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		return -1
	}
	return float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
}
