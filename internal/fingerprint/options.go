package fingerprint

import (
	"time"

	"github.com/shortontech/goprint/internal/signals"
)

// DefaultTimeout bounds a single source when Options.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// Options are the per-call toggles. The zero value means: every source,
// normalized custom data, no suspicion analysis, 5s timeout, parallel.
type Options struct {
	// Exclude names sources that must not run this call. Excluded sources
	// are absent from the result, and the confidence denominator counts
	// only the sources that ran, not every registered one.
	Exclude []signals.Name `json:"exclude,omitempty"`
	// CustomData is merged under the "custom" key after normalization.
	CustomData map[string]any `json:"customData,omitempty"`
	// AllowUnstableData disables the custom-data normalizer.
	AllowUnstableData bool `json:"allowUnstableData,omitempty"`
	// IncludeSuspicionAnalysis runs the suspicion engine on the result.
	IncludeSuspicionAnalysis bool `json:"includeSuspicionAnalysis,omitempty"`
	// Timeout bounds each source individually.
	Timeout time.Duration `json:"-"`
	// Sequential runs one source at a time, in registration order.
	Sequential bool `json:"sequential,omitempty"`
	// StableOnly feeds only stable-tagged signals into the digest.
	StableOnly bool `json:"stableOnly,omitempty"`
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o Options) excluded() map[signals.Name]bool {
	if len(o.Exclude) == 0 {
		return nil
	}
	out := make(map[signals.Name]bool, len(o.Exclude))
	for _, n := range o.Exclude {
		out[n] = true
	}
	return out
}
