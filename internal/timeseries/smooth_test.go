package timeseries

import (
	"testing"
	"time"
)

func TestSmoothSpikes_OutlierReplacedByBaseline(t *testing.T) {
	// Stable 25C readings, then a 34C calibration spike outside any heating
	// period: the spike becomes the 25C baseline and is flagged.
	points := []Point{
		{Time: at(0), Value: 25},
		{Time: at(60), Value: 25},
		{Time: at(120), Value: 25},
		{Time: at(180), Value: 34},
	}

	out := SmoothSpikes(points, nil, DefaultSmoothConfig())
	last := out[3]
	if !last.Smoothed {
		t.Fatal("expected the spike to be flagged as smoothed")
	}
	if last.Value != 25 {
		t.Errorf("expected baseline 25, got %f", last.Value)
	}
	for i := 0; i < 3; i++ {
		if out[i].Smoothed || out[i].Value != 25 {
			t.Errorf("point %d altered unexpectedly: %+v", i, out[i])
		}
	}
}

func TestSmoothSpikes_BelowCeilingDuringHeating(t *testing.T) {
	// 27C during an active heating period stays: below the 28C ceiling the
	// measurement is trusted.
	periods := []HeatingPeriod{{Start: at(0), End: at(3600)}}
	points := []Point{
		{Time: at(0), Value: 24},
		{Time: at(600), Value: 27},
	}

	out := SmoothSpikes(points, periods, DefaultSmoothConfig())
	if out[1].Smoothed {
		t.Error("27C during heating must not be smoothed")
	}
	if out[1].Value != 27 {
		t.Errorf("expected 27, got %f", out[1].Value)
	}
}

func TestSmoothSpikes_CeilingClampDuringHeating(t *testing.T) {
	periods := []HeatingPeriod{{Start: at(0), End: at(3600)}}
	points := []Point{
		{Time: at(0), Value: 26},
		{Time: at(600), Value: 31},
	}

	out := SmoothSpikes(points, periods, DefaultSmoothConfig())
	if !out[1].Smoothed {
		t.Fatal("expected clamp to be flagged")
	}
	if out[1].Value != 28 {
		t.Errorf("expected ceiling 28, got %f", out[1].Value)
	}
}

func TestSmoothSpikes_NoPrecedingBaseline(t *testing.T) {
	// The first reading has nothing to average against, so even an extreme
	// value passes through.
	points := []Point{{Time: at(0), Value: 34}}
	out := SmoothSpikes(points, nil, DefaultSmoothConfig())
	if out[0].Smoothed || out[0].Value != 34 {
		t.Errorf("expected untouched first reading, got %+v", out[0])
	}
}

func TestSmoothSpikes_BaselineExcludesHotReadings(t *testing.T) {
	// Readings at or above the 26C cutoff do not feed the baseline, so a
	// run of spikes cannot drag the estimate up.
	points := []Point{
		{Time: at(0), Value: 24},
		{Time: at(60), Value: 30},
		{Time: at(120), Value: 30},
		{Time: at(180), Value: 30},
	}

	out := SmoothSpikes(points, nil, DefaultSmoothConfig())
	for i := 1; i < 4; i++ {
		if !out[i].Smoothed {
			t.Errorf("point %d: expected smoothing", i)
		}
		if out[i].Value != 24 {
			t.Errorf("point %d: expected baseline 24, got %f", i, out[i].Value)
		}
	}
}

func TestSmoothSpikes_WithinMarginKept(t *testing.T) {
	// A reading within baseline+1 is a plausible change, not an artifact.
	points := []Point{
		{Time: at(0), Value: 25},
		{Time: at(60), Value: 25.8},
	}
	out := SmoothSpikes(points, nil, DefaultSmoothConfig())
	if out[1].Smoothed {
		t.Errorf("reading within margin must be kept, got %+v", out[1])
	}
}

func TestSmoothSpikes_LookbackLimit(t *testing.T) {
	// Only the most recent 20 qualifying readings feed the baseline.
	cfg := DefaultSmoothConfig()
	points := make([]Point, 0, 31)
	for i := 0; i < 10; i++ {
		points = append(points, Point{Time: at(i * 60), Value: 20})
	}
	for i := 10; i < 30; i++ {
		points = append(points, Point{Time: at(i * 60), Value: 25})
	}
	points = append(points, Point{Time: at(30 * 60), Value: 34})

	out := SmoothSpikes(points, nil, cfg)
	last := out[30]
	if !last.Smoothed {
		t.Fatal("expected the spike to be smoothed")
	}
	// The 20-sample lookback covers only the 25C run.
	if last.Value != 25 {
		t.Errorf("expected baseline 25 from capped lookback, got %f", last.Value)
	}
}

func TestHeatingPeriods_Transitions(t *testing.T) {
	now := at(7200)
	points := []SwitchPoint{
		{Time: at(0), On: false},
		{Time: at(600), On: true},
		{Time: at(1800), On: false},
		{Time: at(3600), On: true},
	}

	periods := HeatingPeriods(points, now)
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(periods))
	}
	if !periods[0].Start.Equal(at(600)) || !periods[0].End.Equal(at(1800)) {
		t.Errorf("first period wrong: %+v", periods[0])
	}
	// Interval still on at window end closes at now.
	if !periods[1].End.Equal(now) {
		t.Errorf("open period should close at now, got %v", periods[1].End)
	}
}

func TestHeatingPeriods_Unsorted(t *testing.T) {
	now := at(3600)
	points := []SwitchPoint{
		{Time: at(1800), On: false},
		{Time: at(600), On: true},
	}
	periods := HeatingPeriods(points, now)
	if len(periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(periods))
	}
	if !periods[0].Start.Equal(at(600)) {
		t.Errorf("expected start at t=600, got %v", periods[0].Start)
	}
}

func TestHeatingPeriod_ContainsClosedOpen(t *testing.T) {
	p := HeatingPeriod{Start: at(0), End: at(600)}
	if !p.Contains(at(0)) {
		t.Error("start is inside the interval")
	}
	if p.Contains(at(600)) {
		t.Error("end is outside the closed-open interval")
	}
	if p.Contains(at(600).Add(-time.Second)) == false {
		t.Error("last second should be inside")
	}
}

func TestHeatingPeriods_Empty(t *testing.T) {
	if got := HeatingPeriods(nil, at(0)); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
