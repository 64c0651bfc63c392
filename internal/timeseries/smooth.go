package timeseries

import "time"

// SmoothConfig holds the pool-sensor smoothing thresholds. They are
// empirically tuned per sensor, so they live in configuration rather than as
// algorithmic constants.
type SmoothConfig struct {
	// CeilingC is the physical ceiling the measurement is trusted below.
	// Readings above it during a heating period clamp to it.
	CeilingC float64
	// BaselineMarginC is how far above the estimated baseline a reading may
	// sit outside heating periods before it is replaced.
	BaselineMarginC float64
	// BaselineCutoffC excludes readings at or above this value from the
	// baseline estimate.
	BaselineCutoffC float64
	// LookbackCount caps how many preceding readings feed the baseline.
	LookbackCount int
}

// DefaultSmoothConfig returns the tuned thresholds for the pool temperature
// sensor's calibration artifact.
func DefaultSmoothConfig() SmoothConfig {
	return SmoothConfig{
		CeilingC:        28,
		BaselineMarginC: 1,
		BaselineCutoffC: 26,
		LookbackCount:   20,
	}
}

// SmoothedPoint is one output sample of the spike smoother.
type SmoothedPoint struct {
	Time     time.Time
	Value    float64
	Smoothed bool
}

// SmoothSpikes suppresses the pool sensor's calibration spikes. During a
// heating period, readings above the ceiling clamp to it. Outside any
// period, a local baseline is the average of up to LookbackCount preceding
// readings below the cutoff; a reading exceeding baseline plus the margin is
// replaced by that baseline. This is a heuristic, not a statistical filter.
func SmoothSpikes(points []Point, periods []HeatingPeriod, cfg SmoothConfig) []SmoothedPoint {
	out := make([]SmoothedPoint, 0, len(points))
	for i, p := range points {
		sp := SmoothedPoint{Time: p.Time, Value: p.Value}

		if inAnyPeriod(p.Time, periods) {
			if p.Value > cfg.CeilingC {
				sp.Value = cfg.CeilingC
				sp.Smoothed = true
			}
			out = append(out, sp)
			continue
		}

		if baseline, ok := localBaseline(points, i, cfg); ok && p.Value > baseline+cfg.BaselineMarginC {
			sp.Value = baseline
			sp.Smoothed = true
		}
		out = append(out, sp)
	}
	return out
}

// localBaseline averages the last LookbackCount readings below the cutoff
// preceding index i. ok is false when no qualifying reading precedes i.
func localBaseline(points []Point, i int, cfg SmoothConfig) (float64, bool) {
	sum := 0.0
	n := 0
	for j := i - 1; j >= 0 && n < cfg.LookbackCount; j-- {
		if points[j].Value < cfg.BaselineCutoffC {
			sum += points[j].Value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
