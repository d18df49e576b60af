package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// infoJSON is the subset of yt-dlp's --dump-single-json output we read.
type infoJSON struct {
	ID        string                         `json:"id"`
	Title     string                         `json:"title"`
	Formats   []formatJSON                   `json:"formats"`
	Subtitles map[string][]subtitleTrackJSON `json:"subtitles"`
}

type formatJSON struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Height         *float64 `json:"height"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	TBR            *float64 `json:"tbr"`
}

type subtitleTrackJSON struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

func (f formatJSON) height() int {
	if f.Height == nil || *f.Height <= 0 {
		return 0
	}
	return int(*f.Height)
}

// size prefers the exact reported size over the approximation.
func (f formatJSON) size() int64 {
	if f.Filesize != nil && *f.Filesize > 0 {
		return int64(math.Round(*f.Filesize))
	}
	if f.FilesizeApprox != nil && *f.FilesizeApprox > 0 {
		return int64(math.Round(*f.FilesizeApprox))
	}
	return 0
}

func (f formatJSON) hasVideo() bool {
	return f.VCodec != "none" && f.height() > 0
}

func (f formatJSON) hasAudio() bool {
	return f.ACodec != "none"
}

func (f formatJSON) isAudioOnly() bool {
	return f.VCodec == "none" && f.ACodec != "" && f.ACodec != "none"
}

// parseInfo maps yt-dlp JSON to renditions and subtitles.
func parseInfo(data []byte) (*domain.MediaInfo, error) {
	var info infoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: parse yt-dlp output: %v", domain.ErrResolution, err)
	}
	if len(info.Formats) == 0 {
		return nil, fmt.Errorf("%w: no formats available", domain.ErrResolution)
	}

	return &domain.MediaInfo{
		Title:      strings.TrimSpace(info.Title),
		Renditions: buildRenditions(info.Formats),
		Subtitles:  buildSubtitles(info.Subtitles),
	}, nil
}

// buildRenditions groups video formats by height. The predicted size of a
// height is the largest known video size at that height plus, when that video
// carries no audio, the largest known audio-only size. Any unknown part makes
// the whole prediction unknown.
func buildRenditions(formats []formatJSON) domain.Renditions {
	renditions := domain.NewRenditions()

	var (
		audioSize     int64
		audioUnknown  bool
		haveAudioOnly bool
	)
	for _, f := range formats {
		if !f.isAudioOnly() {
			continue
		}
		haveAudioOnly = true
		if s := f.size(); s > audioSize {
			audioSize = s
		}
	}
	if haveAudioOnly && audioSize == 0 {
		audioUnknown = true
	}

	byHeight := make(map[int]formatJSON)
	for _, f := range formats {
		if !f.hasVideo() {
			continue
		}
		h := f.height()
		cur, ok := byHeight[h]
		if !ok || f.size() > cur.size() {
			byHeight[h] = f
		}
	}

	for h, f := range byHeight {
		size := f.size()
		if size > 0 && !f.hasAudio() && haveAudioOnly {
			if audioUnknown {
				size = 0
			} else {
				size += audioSize
			}
		}
		renditions.Add(domain.RenditionDescriptor{
			QualityLabel:   domain.HeightLabel(h),
			Height:         h,
			ApproxSize:     size,
			FormatSelector: domain.HeightSelector(h),
		})
	}

	return renditions
}

func buildSubtitles(tracks map[string][]subtitleTrackJSON) domain.SubtitleCatalog {
	catalog := make(domain.SubtitleCatalog, len(tracks))
	for lang, list := range tracks {
		if lang == "live_chat" {
			continue
		}
		exts := make([]string, 0, len(list))
		for _, t := range list {
			if t.Ext != "" {
				exts = append(exts, t.Ext)
			}
		}
		catalog[lang] = exts
	}
	return catalog
}
