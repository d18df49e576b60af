// Package quality maps user quality requests onto concrete renditions and
// decides, from predicted sizes, whether a download can ever be delivered.
package quality

import (
	"strconv"
	"strings"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// Negotiate maps a free-form quality request to a label present in renditions.
// Unknown requests resolve to "best"; negotiation never fails.
func Negotiate(requested string, renditions domain.Renditions) string {
	label := strings.ToLower(strings.TrimSpace(requested))
	if label == "" {
		return domain.QualityBest
	}

	if _, ok := renditions[label]; ok {
		return label
	}

	if n, err := strconv.Atoi(label); err == nil && n > 0 {
		withSuffix := domain.HeightLabel(n)
		if _, ok := renditions[withSuffix]; ok {
			return withSuffix
		}
	}

	return domain.QualityBest
}

// IsFallback reports whether Negotiate substituted "best" for something the
// user asked for explicitly.
func IsFallback(requested, resolved string) bool {
	label := strings.ToLower(strings.TrimSpace(requested))
	return label != "" && label != domain.QualityBest && resolved == domain.QualityBest
}
