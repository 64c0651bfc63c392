// Package timeseries holds the pure numerical pipeline: multi-series time
// alignment, per-entity normalization, rolling trapezoidal integrals and the
// pool-sensor spike smoother.
package timeseries

import (
	"sort"
	"time"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
)

// RawPoint is one parsed historical sample. Value is nil when the recorded
// state was non-numeric or unavailable.
type RawPoint struct {
	Time  time.Time
	Value *float64
}

// Point is one sample with a known value.
type Point struct {
	Time  time.Time
	Value float64
}

// Range is the configured min/max used to normalize one entity onto the
// 0-100 chart scale.
type Range struct {
	Min float64
	Max float64
}

// AlignedValue is one entity's contribution to a grid point.
type AlignedValue struct {
	Raw        *float64
	Normalized *float64
}

// AlignedPoint is one row of the merged grid.
type AlignedPoint struct {
	Time   time.Time
	Values map[hass.EntityID]AlignedValue
}

// Normalize rescales v into 0-100 against [min,max], clamped. The degenerate
// min == max case returns 50 regardless of v.
func Normalize(v, min, max float64) float64 {
	if min == max {
		return 50
	}
	n := (v - min) / (max - min) * 100
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// Align merges per-entity series onto the sorted union of their timestamps,
// carrying each entity's last known value forward to timestamps where it has
// no new reading. Before an entity's first reading its value is nil. Raw
// values get a normalized companion in 0-100 from the entity's configured
// range; normalized is nil exactly when raw is nil.
//
// This is an O(T*E) merge, which is fine at dashboard scale.
func Align(series map[hass.EntityID][]RawPoint, ranges map[hass.EntityID]Range) []AlignedPoint {
	grid := unionTimestamps(series)
	if len(grid) == 0 {
		return nil
	}

	// One carry-forward cursor per entity, advanced monotonically over the
	// grid scan.
	type cursor struct {
		points []RawPoint
		idx    int
		last   *float64
	}
	cursors := make(map[hass.EntityID]*cursor, len(series))
	for id, pts := range series {
		sorted := make([]RawPoint, len(pts))
		copy(sorted, pts)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
		cursors[id] = &cursor{points: sorted}
	}

	out := make([]AlignedPoint, 0, len(grid))
	for _, ts := range grid {
		row := AlignedPoint{Time: ts, Values: make(map[hass.EntityID]AlignedValue, len(cursors))}
		for id, cur := range cursors {
			for cur.idx < len(cur.points) && !cur.points[cur.idx].Time.After(ts) {
				if v := cur.points[cur.idx].Value; v != nil {
					cur.last = v
				}
				cur.idx++
			}
			av := AlignedValue{}
			if cur.last != nil {
				raw := *cur.last
				av.Raw = &raw
				rng, ok := ranges[id]
				if !ok {
					// Unconfigured entities chart on a literal 0-100 scale.
					rng = Range{Min: 0, Max: 100}
				}
				n := Normalize(raw, rng.Min, rng.Max)
				av.Normalized = &n
			}
			row.Values[id] = av
		}
		out = append(out, row)
	}
	return out
}

// unionTimestamps returns the ascending, deduplicated union of all
// timestamps present in any series.
func unionTimestamps(series map[hass.EntityID][]RawPoint) []time.Time {
	seen := make(map[int64]time.Time)
	for _, pts := range series {
		for _, p := range pts {
			seen[p.Time.UnixMilli()] = p.Time
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
