package timeseries

import (
	"sort"
	"time"
)

// SwitchPoint is one sample of a boolean sensor's history.
type SwitchPoint struct {
	Time time.Time
	On   bool
}

// HeatingPeriod is a closed-open interval [Start, End) during which heating
// was on.
type HeatingPeriod struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p HeatingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// HeatingPeriods derives on/off intervals from a boolean sensor's history.
// An interval still open at the end of the query window is closed at now.
func HeatingPeriods(points []SwitchPoint, now time.Time) []HeatingPeriod {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]SwitchPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	var periods []HeatingPeriod
	var start time.Time
	open := false
	for _, p := range sorted {
		switch {
		case p.On && !open:
			start = p.Time
			open = true
		case !p.On && open:
			periods = append(periods, HeatingPeriod{Start: start, End: p.Time})
			open = false
		}
	}
	if open {
		periods = append(periods, HeatingPeriod{Start: start, End: now})
	}
	return periods
}

func inAnyPeriod(t time.Time, periods []HeatingPeriod) bool {
	for _, p := range periods {
		if p.Contains(t) {
			return true
		}
	}
	return false
}
