package metrics

import (
	"time"

	"github.com/shortontech/goprint/internal/fingerprint"
	"github.com/shortontech/goprint/internal/signals"
)

// Posted signal names outside the catalogue share one label value so that
// collectors cannot grow label cardinality.
const otherSource = "other"

func sourceLabel(name signals.Name) string {
	if _, ok := signals.MetadataFor(name); ok {
		return string(name)
	}
	return otherSource
}

// ObserveSource implements fingerprint.Observer.
func (m *Metrics) ObserveSource(name signals.Name, outcome fingerprint.Outcome, d time.Duration) {
	label := sourceLabel(name)
	m.SourceOutcomes.WithLabelValues(label, string(outcome)).Inc()
	m.SourceDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveResult implements fingerprint.Observer.
func (m *Metrics) ObserveResult(res *fingerprint.Result) {
	level := "none"
	if res.Suspicion != nil {
		level = string(res.Suspicion.RiskLevel)
		m.SuspicionScore.Observe(float64(res.Suspicion.Score))
		for _, s := range res.Suspicion.Signals {
			m.RuleDetections.WithLabelValues(s.ID).Inc()
		}
	}
	m.FingerprintsGenerated.WithLabelValues(level).Inc()
	m.Confidence.Observe(float64(res.Confidence))
	m.GenerateDuration.Observe(res.Duration.Seconds())
	for code, n := range res.Diagnostics.Faults {
		m.PipelineFaults.WithLabelValues(string(code)).Add(float64(n))
	}
}

// IncrementRulesReloads counts rule table reloads; result is "ok" or "error".
func (m *Metrics) IncrementRulesReloads(result string) {
	m.RulesReloads.WithLabelValues(result).Inc()
}

var _ fingerprint.Observer = (*Metrics)(nil)
