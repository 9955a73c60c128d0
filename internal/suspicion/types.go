// Package suspicion scores a signal set against a fixed battery of
// heuristics and reports which of them fired.
package suspicion

// Category groups rules by what they look for.
type Category string

const (
	CategoryAutomation     Category = "automation"
	CategoryInconsistency  Category = "inconsistency"
	CategoryEnvironment    Category = "environment"
	CategoryBotPattern     Category = "bot-pattern"
	CategoryPrivacyTooling Category = "privacy-tooling"
)

// RiskLevel is the discrete bucket for a score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Score thresholds, inclusive on the lower bound.
const (
	MediumThreshold = 30
	HighThreshold   = 70
	MaxScore        = 100
)

// Signal is one fired rule. It is derived per run and never stored.
type Signal struct {
	ID          string   `json:"id"`
	Severity    int      `json:"severity"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Detected    bool     `json:"detected"`
}

// Result only lists detected signals, in rule order.
type Result struct {
	Score     int       `json:"score"`
	RiskLevel RiskLevel `json:"risk_level"`
	Signals   []Signal  `json:"signals"`
}

// Level maps a score onto its risk bucket.
func Level(score int) RiskLevel {
	switch {
	case score >= HighThreshold:
		return RiskHigh
	case score >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Score sums severity*10 over detected signals, capped at MaxScore.
func Score(detected []Signal) int {
	total := 0
	for _, s := range detected {
		if s.Detected {
			total += s.Severity * 10
		}
	}
	if total > MaxScore {
		return MaxScore
	}
	if total < 0 {
		return 0
	}
	return total
}
