// Package estimate provides the default remaining-time estimator for
// generation streams. It blends the plan's static per-stage estimates with the
// timings observed so far in the same run.
package estimate

import (
	"time"

	"github.com/logoforge-dev/logoforge/stream"
)

// defaultStageDuration is assumed for stages with no static estimate.
const defaultStageDuration = 15 * time.Second

// Default returns an estimator that scales the static stage estimates by the
// speed factor observed on already-completed stages. With no history it falls
// back to the static estimates alone.
func Default() stream.Estimator {
	return func(stages []stream.StageInfo, currentStageID string, stageProgress int, history map[string]stream.StageHistory) time.Duration {
		if len(stages) == 0 {
			return -1
		}

		factor := speedFactor(stages, history)

		var remaining time.Duration
		seen := false
		for _, st := range stages {
			if st.ID == currentStageID {
				seen = true
				frac := float64(100-clamp(stageProgress)) / 100
				remaining += time.Duration(float64(expected(st)) * frac * factor)
				continue
			}
			if !seen {
				continue
			}
			remaining += time.Duration(float64(expected(st)) * factor)
		}

		if !seen {
			return -1
		}
		return remaining
	}
}

// speedFactor is the average ratio of observed to estimated duration across
// stages that have both. 1.0 with no usable history.
func speedFactor(stages []stream.StageInfo, history map[string]stream.StageHistory) float64 {
	var sum float64
	var n int
	for _, st := range stages {
		h, ok := history[st.ID]
		if !ok || h.EndTime.IsZero() || st.EstimatedDuration <= 0 {
			continue
		}
		actual := h.EndTime.Sub(h.StartTime)
		if actual <= 0 {
			continue
		}
		sum += float64(actual) / float64(time.Duration(st.EstimatedDuration)*time.Millisecond)
		n++
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

func expected(st stream.StageInfo) time.Duration {
	if st.EstimatedDuration > 0 {
		return time.Duration(st.EstimatedDuration) * time.Millisecond
	}
	return defaultStageDuration
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
