package detection

import (
	"context"
	"time"
)

// AnalyzeTiming compares now with the previous post recorded for key and
// records now for the next call.
func AnalyzeTiming(ctx context.Context, tracker TimingTracker, key string, now time.Time) (TimingAnalysis, error) {
	analysis := TimingAnalysis{}

	lastTime, exists, err := tracker.GetLastRequest(ctx, key)
	if err != nil {
		return analysis, err
	}
	if exists && now.After(lastTime) {
		interval := now.Sub(lastTime)
		analysis.RequestInterval = float64(interval.Nanoseconds()) / 1e6
		analysis.HasPreviousRequest = true
		analysis.RequestsPerSecond = 1000.0 / analysis.RequestInterval
		analysis.IntervalPrecision = intervalPrecision(interval.Milliseconds())
	}

	if err := tracker.RecordRequest(ctx, key, now); err != nil {
		return analysis, err
	}
	return analysis, nil
}

// intervalPrecision returns the largest round unit ms is a multiple of.
// Scripted clients tend to sleep in round numbers.
func intervalPrecision(ms int64) int {
	if ms <= 0 {
		return 0
	}
	for _, unit := range []int64{1000, 500, 100, 50, 10} {
		if ms%unit == 0 {
			return int(unit)
		}
	}
	return 0
}
