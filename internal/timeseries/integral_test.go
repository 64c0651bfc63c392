package timeseries

import (
	"math"
	"testing"
	"time"
)

func constantSeries(v float64, samples int, step time.Duration) []Point {
	points := make([]Point, samples)
	for i := range points {
		points[i] = Point{Time: at(0).Add(time.Duration(i) * step), Value: v}
	}
	return points
}

func TestWindowIntegral_ConstantSignal(t *testing.T) {
	// v=5 sampled every minute for 15 minutes => integral 5*15 = 75
	points := constantSeries(5, 16, time.Minute)
	got := WindowIntegral(points, Window15m)
	if math.Abs(got-75) > 1e-9 {
		t.Errorf("expected 75, got %f", got)
	}
}

func TestWindowIntegral_TooFewPoints(t *testing.T) {
	if got := WindowIntegral(nil, Window15m); got != 0 {
		t.Errorf("empty series: expected 0, got %f", got)
	}
	one := []Point{{Time: at(0), Value: 5}}
	if got := WindowIntegral(one, Window15m); got != 0 {
		t.Errorf("single point: expected 0, got %f", got)
	}
}

func TestWindowIntegral_FiltersToWindow(t *testing.T) {
	// Two hours of v=10 every minute; the 30m window only covers the tail.
	points := constantSeries(10, 121, time.Minute)
	got := WindowIntegral(points, Window30m)
	if math.Abs(got-300) > 1e-9 {
		t.Errorf("expected 300 for trailing 30m, got %f", got)
	}
}

func TestWindowIntegral_SinglePointInWindow(t *testing.T) {
	points := []Point{
		{Time: at(0), Value: 5},
		{Time: at(0).Add(2 * time.Hour), Value: 5},
	}
	if got := WindowIntegral(points, Window15m); got != 0 {
		t.Errorf("one in-window point: expected 0, got %f", got)
	}
}

func TestWindowIntegral_Trapezoid(t *testing.T) {
	// Ramp 0 -> 10 over 10 minutes: area = (0+10)/2 * 10 = 50
	points := []Point{
		{Time: at(0), Value: 0},
		{Time: at(600), Value: 10},
	}
	got := WindowIntegral(points, Window15m)
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("expected 50, got %f", got)
	}
}

func TestIntegrals_AllWindows(t *testing.T) {
	// v=2 every minute for 90 minutes
	points := constantSeries(2, 91, time.Minute)
	got := Integrals(points)
	for _, tc := range []struct {
		name string
		got  float64
		want float64
	}{
		{"15m", got.M15, 30},
		{"30m", got.M30, 60},
		{"60m", got.M60, 120},
	} {
		if math.Abs(tc.got-tc.want) > 1e-9 {
			t.Errorf("%s window: expected %f, got %f", tc.name, tc.want, tc.got)
		}
	}
}

func TestSeriesIntegral_GrowsThenSaturates(t *testing.T) {
	points := constantSeries(6, 31, time.Minute)
	out := SeriesIntegral(points, Window15m)

	if len(out.Points) != len(points) {
		t.Fatalf("expected %d derived points, got %d", len(points), len(out.Points))
	}
	if out.Points[0].Value != 0 {
		t.Errorf("first derived value should be 0, got %f", out.Points[0].Value)
	}
	// After the window fills, the rolling value settles at 6*15 = 90.
	last := out.Points[len(out.Points)-1].Value
	if math.Abs(last-90) > 1e-9 {
		t.Errorf("saturated value: expected 90, got %f", last)
	}
	if out.Min != 0 {
		t.Errorf("min: expected 0, got %f", out.Min)
	}
	if math.Abs(out.Max-90) > 1e-9 {
		t.Errorf("max: expected 90, got %f", out.Max)
	}
}

func TestSeriesIntegral_Empty(t *testing.T) {
	out := SeriesIntegral(nil, Window15m)
	if len(out.Points) != 0 {
		t.Errorf("expected no points, got %d", len(out.Points))
	}
}
