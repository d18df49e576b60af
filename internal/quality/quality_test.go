package quality

import (
	"errors"
	"testing"

	"github.com/iconidentify/tubefetch/internal/domain"
)

const mb = int64(1_000_000)

func testRenditions() domain.Renditions {
	r := domain.NewRenditions()
	r.Add(domain.RenditionDescriptor{QualityLabel: "1080p", Height: 1080, ApproxSize: 600 * mb, FormatSelector: domain.HeightSelector(1080)})
	r.Add(domain.RenditionDescriptor{QualityLabel: "720p", Height: 720, ApproxSize: 300 * mb, FormatSelector: domain.HeightSelector(720)})
	r.Add(domain.RenditionDescriptor{QualityLabel: "360p", Height: 360, ApproxSize: 10 * mb, FormatSelector: domain.HeightSelector(360)})
	r.Add(domain.RenditionDescriptor{QualityLabel: "240p", Height: 240, FormatSelector: domain.HeightSelector(240)})
	return r
}

func TestNegotiate_KnownLabelsUnchanged(t *testing.T) {
	r := testRenditions()
	for label := range r {
		if got := Negotiate(label, r); got != label {
			t.Errorf("Negotiate(%q) = %q, want unchanged", label, got)
		}
	}
}

func TestNegotiate_UnknownLabelsFallBackToBest(t *testing.T) {
	r := testRenditions()
	for _, label := range []string{"4k", "480p", "hd", "ultra", "-1", "0", "", "  "} {
		if got := Negotiate(label, r); got != domain.QualityBest {
			t.Errorf("Negotiate(%q) = %q, want best", label, got)
		}
	}
}

func TestNegotiate_Normalization(t *testing.T) {
	r := testRenditions()
	tests := []struct {
		in   string
		want string
	}{
		{"720P", "720p"},
		{" 1080p ", "1080p"},
		{"BEST", "best"},
		{"Worst", "worst"},
	}
	for _, tt := range tests {
		if got := Negotiate(tt.in, r); got != tt.want {
			t.Errorf("Negotiate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNegotiate_BareInteger(t *testing.T) {
	r := testRenditions()
	if got := Negotiate("360", r); got != "360p" {
		t.Errorf("Negotiate(360) with 360p present = %q, want 360p", got)
	}

	delete(r, "360p")
	if got := Negotiate("360", r); got != domain.QualityBest {
		t.Errorf("Negotiate(360) with 360p absent = %q, want best", got)
	}
}

func TestIsFallback(t *testing.T) {
	tests := []struct {
		requested, resolved string
		want                bool
	}{
		{"720p", "best", true},
		{"best", "best", false},
		{"", "best", false},
		{"720", "720p", false},
	}
	for _, tt := range tests {
		if got := IsFallback(tt.requested, tt.resolved); got != tt.want {
			t.Errorf("IsFallback(%q, %q) = %v, want %v", tt.requested, tt.resolved, got, tt.want)
		}
	}
}

func TestPlan(t *testing.T) {
	const (
		uploadCeiling = 500 * mb
		chatLimit     = 25 * mb
	)

	tests := []struct {
		name         string
		label        string
		wantAction   Action
		wantLabel    string
		wantSize     int64
		wantFallback bool
	}{
		{"best has no prediction", "best", Proceed, "best", 0, false},
		{"worst has no prediction", "worst", Proceed, "worst", 0, false},
		{"unknown size", "240p", Proceed, "240p", 0, false},
		{"fits chat limit", "360p", Proceed, "360p", 10 * mb, false},
		{"between limits", "720p", Proceed, "720p", 300 * mb, true},
		{"over ceiling downgrades", "1080p", Downgrade, "720p", 300 * mb, true},
		{"missing label", "480p", Proceed, "480p", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Plan(tt.label, testRenditions(), uploadCeiling, chatLimit)
			if d.Action != tt.wantAction {
				t.Fatalf("Action = %s, want %s", d.Action, tt.wantAction)
			}
			if d.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", d.Label, tt.wantLabel)
			}
			if d.SizeBytes != tt.wantSize {
				t.Errorf("SizeBytes = %d, want %d", d.SizeBytes, tt.wantSize)
			}
			if d.FallbackHosting != tt.wantFallback {
				t.Errorf("FallbackHosting = %v, want %v", d.FallbackHosting, tt.wantFallback)
			}
			if d.Err(uploadCeiling) != nil {
				t.Errorf("Err() should be nil for %s", d.Action)
			}
		})
	}
}

func TestPlan_DowngradePicksTallestFitting(t *testing.T) {
	r := domain.NewRenditions()
	r.Add(domain.RenditionDescriptor{QualityLabel: "1080p", Height: 1080, ApproxSize: 600 * mb})
	r.Add(domain.RenditionDescriptor{QualityLabel: "480p", Height: 480, ApproxSize: 120 * mb})
	r.Add(domain.RenditionDescriptor{QualityLabel: "720p", Height: 720, ApproxSize: 300 * mb})
	r.Add(domain.RenditionDescriptor{QualityLabel: "144p", Height: 144, ApproxSize: 5 * mb})
	// taller but unknown size is never assumed to fit
	r.Add(domain.RenditionDescriptor{QualityLabel: "900p", Height: 900})

	d := Plan("1080p", r, 500*mb, 25*mb)
	if d.Action != Downgrade || d.Label != "720p" {
		t.Errorf("Plan() = %+v, want downgrade to 720p", d)
	}
}

func TestPlan_DowngradeBelowChatLimit(t *testing.T) {
	r := domain.NewRenditions()
	r.Add(domain.RenditionDescriptor{QualityLabel: "1080p", Height: 1080, ApproxSize: 600 * mb})
	r.Add(domain.RenditionDescriptor{QualityLabel: "144p", Height: 144, ApproxSize: 5 * mb})

	d := Plan("1080p", r, 500*mb, 25*mb)
	if d.Action != Downgrade || d.Label != "144p" {
		t.Fatalf("Plan() = %+v, want downgrade to 144p", d)
	}
	if d.FallbackHosting {
		t.Error("144p fits the chat limit and should not need hosting")
	}
}

func TestPlan_RejectWhenNothingFits(t *testing.T) {
	r := domain.NewRenditions()
	r.Add(domain.RenditionDescriptor{QualityLabel: "1080p", Height: 1080, ApproxSize: 900 * mb})
	r.Add(domain.RenditionDescriptor{QualityLabel: "720p", Height: 720, ApproxSize: 700 * mb})

	d := Plan("1080p", r, 500*mb, 25*mb)
	if d.Action != Reject {
		t.Fatalf("Action = %s, want reject", d.Action)
	}
	if d.Reason != ReasonNoFit {
		t.Errorf("Reason = %q", d.Reason)
	}

	err := d.Err(500 * mb)
	if !errors.Is(err, domain.ErrSizeLimitExceeded) {
		t.Errorf("Err() = %v, want size limit error", err)
	}
	var sle *domain.SizeLimitError
	if !errors.As(err, &sle) || sle.Limit != 500*mb {
		t.Errorf("Err() should carry the ceiling, got %v", err)
	}
}

func TestPlan_CeilingBelowChatLimitStillAttaches(t *testing.T) {
	r := domain.NewRenditions()
	r.Add(domain.RenditionDescriptor{QualityLabel: "720p", Height: 720, ApproxSize: 30 * mb})
	r.Add(domain.RenditionDescriptor{QualityLabel: "360p", Height: 360, ApproxSize: 10 * mb})

	// no usable file host at all
	d := Plan("720p", r, 0, 25*mb)
	if d.Action != Downgrade || d.Label != "360p" {
		t.Fatalf("Plan() = %+v, want downgrade to 360p", d)
	}
	if d.FallbackHosting {
		t.Error("360p is attached directly and should not need hosting")
	}

	// a file host smaller than the chat limit
	d = Plan("720p", r, 5*mb, 25*mb)
	if d.Action != Downgrade || d.Label != "360p" {
		t.Errorf("Plan() = %+v, want downgrade to 360p", d)
	}
}

func TestPlan_CeilingBelowChatLimitRejectsOversized(t *testing.T) {
	r := domain.NewRenditions()
	r.Add(domain.RenditionDescriptor{QualityLabel: "720p", Height: 720, ApproxSize: 30 * mb})

	d := Plan("720p", r, 0, 25*mb)
	if d.Action != Reject {
		t.Errorf("Plan() = %+v, want reject", d)
	}
}

func TestEffectiveCeiling(t *testing.T) {
	if got := EffectiveCeiling(0, 25*mb); got != 25*mb {
		t.Errorf("EffectiveCeiling(0, 25MB) = %d", got)
	}
	if got := EffectiveCeiling(500*mb, 25*mb); got != 500*mb {
		t.Errorf("EffectiveCeiling(500MB, 25MB) = %d", got)
	}
}
