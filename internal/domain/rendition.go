package domain

import (
	"sort"
	"strconv"
)

// Labels that are always present in a Renditions set.
const (
	QualityBest  = "best"
	QualityWorst = "worst"
)

// Format selectors handed to the resolver for the fixed labels.
const (
	SelectorBest  = "bestvideo+bestaudio/best"
	SelectorWorst = "worstvideo+worstaudio/worst"
)

// RenditionDescriptor describes one downloadable quality of a video.
// Height and ApproxSize are zero when unknown.
type RenditionDescriptor struct {
	QualityLabel   string
	Height         int
	ApproxSize     int64
	FormatSelector string
}

// HasSize reports whether a size prediction exists for the rendition.
func (r RenditionDescriptor) HasSize() bool {
	return r.ApproxSize > 0
}

// Renditions maps quality labels to their descriptors.
type Renditions map[string]RenditionDescriptor

// NewRenditions returns a set holding only the fixed "best" and "worst" entries.
func NewRenditions() Renditions {
	return Renditions{
		QualityBest:  {QualityLabel: QualityBest, FormatSelector: SelectorBest},
		QualityWorst: {QualityLabel: QualityWorst, FormatSelector: SelectorWorst},
	}
}

// Add inserts a rendition. The fixed labels cannot be overwritten so they
// never carry a size prediction.
func (r Renditions) Add(d RenditionDescriptor) {
	if d.QualityLabel == QualityBest || d.QualityLabel == QualityWorst {
		return
	}
	r[d.QualityLabel] = d
}

// Labels returns all labels, tallest first, with "best" leading and "worst" trailing.
func (r Renditions) Labels() []string {
	labels := make([]string, 0, len(r))
	for label := range r {
		if label == QualityBest || label == QualityWorst {
			continue
		}
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		hi, hj := r[labels[i]].Height, r[labels[j]].Height
		if hi != hj {
			return hi > hj
		}
		return labels[i] < labels[j]
	})
	out := make([]string, 0, len(labels)+2)
	if _, ok := r[QualityBest]; ok {
		out = append(out, QualityBest)
	}
	out = append(out, labels...)
	if _, ok := r[QualityWorst]; ok {
		out = append(out, QualityWorst)
	}
	return out
}

// HeightLabel returns the label used for a rendition of the given height.
func HeightLabel(height int) string {
	return strconv.Itoa(height) + "p"
}

// HeightSelector returns a selector that caps the video stream at height.
func HeightSelector(height int) string {
	h := strconv.Itoa(height)
	return "bestvideo[height<=" + h + "]+bestaudio/best[height<=" + h + "]"
}

// SubtitleCatalog maps language codes to the track formats available for them.
type SubtitleCatalog map[string][]string

// Languages returns the catalog's language codes in sorted order.
func (c SubtitleCatalog) Languages() []string {
	langs := make([]string, 0, len(c))
	for lang := range c {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// MediaInfo is what the resolver learns about a URL without downloading it.
type MediaInfo struct {
	Title      string
	Renditions Renditions
	Subtitles  SubtitleCatalog
}
