package fingerprint

import (
	"time"

	"github.com/shortontech/goprint/internal/fault"
	"github.com/shortontech/goprint/internal/signals"
	"github.com/shortontech/goprint/internal/suspicion"
)

// CustomKey is the mapping entry that carries normalized caller data.
const CustomKey signals.Name = "custom"

// Result is one complete aggregation run.
type Result struct {
	ID          string            `json:"id"`
	Fingerprint string            `json:"fingerprint"`
	Signals     *signals.Set      `json:"signals"`
	Custom      map[string]any    `json:"custom,omitempty"`
	Confidence  int               `json:"confidence"`
	Entropy     float64           `json:"entropy"`
	Duration    time.Duration     `json:"-"`
	DurationMS  float64           `json:"duration_ms"`
	Suspicion   *suspicion.Result `json:"suspicion,omitempty"`
	Diagnostics Diagnostics       `json:"diagnostics"`
}

// Diagnostics records what degraded during a run. None of it is fatal.
type Diagnostics struct {
	Collected       []signals.Name          `json:"collected"`
	Failed          map[signals.Name]string `json:"failed,omitempty"`
	TimedOut        []signals.Name          `json:"timed_out,omitempty"`
	Excluded        []signals.Name          `json:"excluded,omitempty"`
	DroppedCustom   []string                `json:"dropped_custom,omitempty"`
	MalformedCustom []string                `json:"malformed_custom,omitempty"`
	DigestAlgorithm string                  `json:"digest_algorithm"`
	StableOnly      bool                    `json:"stable_only,omitempty"`
	Faults          map[fault.Code]int      `json:"faults,omitempty"`
}

func (d *Diagnostics) addFault(code fault.Code) {
	if code == "" {
		return
	}
	if d.Faults == nil {
		d.Faults = make(map[fault.Code]int)
	}
	d.Faults[code]++
}

// Merged returns the signal set with the custom block appended, which is
// the mapping the digest is computed over.
func (r *Result) Merged() *signals.Set {
	return merge(r.Signals, r.Custom)
}

func merge(set *signals.Set, custom map[string]any) *signals.Set {
	entries := set.Entries()
	if len(custom) > 0 {
		entries = append(entries, signals.Entry{Name: CustomKey, Value: signals.Ok(custom)})
	}
	return signals.NewSet(entries...)
}
