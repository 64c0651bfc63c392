package timeseries

import "time"

// Rolling integral windows used by the live readout.
const (
	Window15m = 15 * time.Minute
	Window30m = 30 * time.Minute
	Window60m = 60 * time.Minute
)

// WindowIntegral computes the trapezoidal integral of the signal over the
// trailing window ending at the latest sample. The unit is signal-unit
// times minutes. Fewer than two in-window points yield 0.
func WindowIntegral(points []Point, window time.Duration) float64 {
	if len(points) < 2 {
		return 0
	}
	latest := points[len(points)-1].Time
	cutoff := latest.Add(-window)

	start := 0
	for start < len(points) && points[start].Time.Before(cutoff) {
		start++
	}
	return trapezoid(points[start:])
}

func trapezoid(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(points); i++ {
		p1, p2 := points[i-1], points[i]
		dtMin := p2.Time.Sub(p1.Time).Minutes()
		total += (p1.Value + p2.Value) / 2 * dtMin
	}
	return total
}

// IntegralWindows is the snapshot readout over the three fixed windows.
type IntegralWindows struct {
	M15 float64
	M30 float64
	M60 float64
}

// Integrals computes the snapshot integral relative to the latest sample for
// the three fixed windows.
func Integrals(points []Point) IntegralWindows {
	return IntegralWindows{
		M15: WindowIntegral(points, Window15m),
		M30: WindowIntegral(points, Window30m),
		M60: WindowIntegral(points, Window60m),
	}
}

// IntegralSeries is a graphable derived signal: the rolling integral
// recomputed at every historical timestamp, with min/max tracked for the
// series' own normalization.
type IntegralSeries struct {
	Points []Point
	Min    float64
	Max    float64
}

// SeriesIntegral computes the rolling integral at every point of the input.
// At index i the value is the trapezoidal integral over [t_i - window, t_i].
func SeriesIntegral(points []Point, window time.Duration) IntegralSeries {
	out := IntegralSeries{}
	if len(points) == 0 {
		return out
	}

	out.Points = make([]Point, 0, len(points))
	start := 0
	for i := range points {
		cutoff := points[i].Time.Add(-window)
		for start < len(points) && points[start].Time.Before(cutoff) {
			start++
		}
		v := trapezoid(points[start : i+1])
		out.Points = append(out.Points, Point{Time: points[i].Time, Value: v})
		if len(out.Points) == 1 || v < out.Min {
			out.Min = v
		}
		if len(out.Points) == 1 || v > out.Max {
			out.Max = v
		}
	}
	return out
}
