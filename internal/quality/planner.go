package quality

import (
	"fmt"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// Action is the planner's verdict for a resolved rendition.
type Action int

const (
	// Proceed downloads the resolved rendition as requested.
	Proceed Action = iota
	// Downgrade switches to a smaller rendition that fits the hosting limit.
	Downgrade
	// Reject refuses the request before downloading.
	Reject
)

func (a Action) String() string {
	switch a {
	case Proceed:
		return "proceed"
	case Downgrade:
		return "downgrade"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ReasonNoFit is the rejection reason when no rendition fits the hosting limit.
const ReasonNoFit = "no quality fits the hosting limit"

// Decision is the outcome of Plan.
type Decision struct {
	Action Action
	// Label and SizeBytes name the rendition to download for Proceed and Downgrade.
	Label     string
	SizeBytes int64
	// FallbackHosting is set when the predicted size already exceeds the chat
	// attachment limit, so the result will go to an upload backend.
	FallbackHosting bool
	// Reason explains a rejection.
	Reason string
}

// Err converts a rejection into a SizeLimitError carrying the upload ceiling.
func (d Decision) Err(uploadCeiling int64) error {
	if d.Action != Reject {
		return nil
	}
	return fmt.Errorf("%s: %w", d.Reason, &domain.SizeLimitError{Size: d.SizeBytes, Limit: uploadCeiling})
}

// Plan checks the predicted size of the resolved rendition against the chat
// attachment limit and the upload ceiling.
func Plan(label string, renditions domain.Renditions, uploadCeiling, chatLimit int64) Decision {
	r, ok := renditions[label]
	if !ok || !r.HasSize() {
		// unknown size is judged after the real download
		return Decision{Action: Proceed, Label: label}
	}

	size := r.ApproxSize
	switch {
	case size <= chatLimit:
		return Decision{Action: Proceed, Label: label, SizeBytes: size}

	case size > uploadCeiling:
		// attaching needs no file host, so anything under the chat limit is
		// still deliverable when the upload ceiling is smaller
		best, found := tallestFitting(renditions, EffectiveCeiling(uploadCeiling, chatLimit))
		if !found {
			return Decision{Action: Reject, Label: label, SizeBytes: size, Reason: ReasonNoFit}
		}
		return Decision{
			Action:          Downgrade,
			Label:           best.QualityLabel,
			SizeBytes:       best.ApproxSize,
			FallbackHosting: best.ApproxSize > chatLimit,
		}

	default:
		return Decision{Action: Proceed, Label: label, SizeBytes: size, FallbackHosting: true}
	}
}

// EffectiveCeiling is the largest predicted size that can reach the user,
// either as an attachment or through a file host.
func EffectiveCeiling(uploadCeiling, chatLimit int64) int64 {
	return max(uploadCeiling, chatLimit)
}

// tallestFitting returns the rendition with the greatest height whose known
// size fits within ceiling. Ties on height are broken arbitrarily.
func tallestFitting(renditions domain.Renditions, ceiling int64) (domain.RenditionDescriptor, bool) {
	var best domain.RenditionDescriptor
	found := false
	for _, r := range renditions {
		if !r.HasSize() || r.ApproxSize > ceiling {
			continue
		}
		if !found || r.Height > best.Height {
			best = r
			found = true
		}
	}
	return best, found
}
