package history

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
	"github.com/sakumikko/lammonsaato-sub000/internal/timeseries"
)

// toRawPoints parses one entity's historical records into a sorted series.
// Records without a usable timestamp are skipped; non-numeric and
// unavailable states become nil values so alignment can still carry state.
func toRawPoints(recs []hass.HistoryRecord) []timeseries.RawPoint {
	out := make([]timeseries.RawPoint, 0, len(recs))
	for i := range recs {
		ts, ok := recs[i].Time()
		if !ok {
			continue
		}
		p := timeseries.RawPoint{Time: ts}
		state := recs[i].StateValue()
		if v, err := strconv.ParseFloat(strings.TrimSpace(state), 64); err == nil {
			p.Value = &v
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// toSwitchPoints parses a boolean sensor's records into on/off samples.
func toSwitchPoints(recs []hass.HistoryRecord) []timeseries.SwitchPoint {
	out := make([]timeseries.SwitchPoint, 0, len(recs))
	for i := range recs {
		ts, ok := recs[i].Time()
		if !ok {
			continue
		}
		state := recs[i].StateValue()
		out = append(out, timeseries.SwitchPoint{Time: ts, On: state == "on" || state == "true"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// toPoints drops the nil samples of a raw series.
func toPoints(raw []timeseries.RawPoint) []timeseries.Point {
	out := make([]timeseries.Point, 0, len(raw))
	for _, p := range raw {
		if p.Value != nil {
			out = append(out, timeseries.Point{Time: p.Time, Value: *p.Value})
		}
	}
	return out
}
