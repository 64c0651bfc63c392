package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
	"github.com/sakumikko/lammonsaato-sub000/internal/logger"
	"github.com/sakumikko/lammonsaato-sub000/internal/timeseries"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func rec(state string, t time.Time) hass.HistoryRecord {
	return hass.HistoryRecord{S: state, LU: float64(t.UnixMilli()) / 1000}
}

// stubFetcher serves canned history and lets a test hook run mid-fetch.
type stubFetcher struct {
	history map[hass.EntityID][]hass.HistoryRecord
	stats   map[hass.EntityID][]hass.StatRecord
	err     error

	// onFetch runs inside FetchHistory, before it returns.
	onFetch func()
	calls   int
}

func (f *stubFetcher) FetchHistory(ctx context.Context, ids []hass.EntityID, start, end time.Time, minimal bool) (map[hass.EntityID][]hass.HistoryRecord, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[hass.EntityID][]hass.HistoryRecord, len(ids))
	for _, id := range ids {
		out[id] = f.history[id]
	}
	return out, nil
}

func (f *stubFetcher) FetchStatistics(ctx context.Context, ids []hass.EntityID, start, end time.Time, period string) (map[hass.EntityID][]hass.StatRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func newTestService(f *stubFetcher) *Service {
	return NewService(f, timeseries.DefaultSmoothConfig(), logger.Nop(), nil)
}

func TestToRawPoints(t *testing.T) {
	recs := []hass.HistoryRecord{
		rec("23.5", at(10)),
		rec("unavailable", at(20)),
		{S: "25.0"}, // no timestamp, skipped
		rec("24.0", at(0)),
	}

	points := toRawPoints(recs)
	require.Len(t, points, 3)

	// Sorted by time regardless of input order.
	assert.True(t, points[0].Time.Equal(at(0)))
	require.NotNil(t, points[0].Value)
	assert.Equal(t, 24.0, *points[0].Value)

	// Non-numeric state keeps its timestamp with a nil value.
	assert.True(t, points[2].Time.Equal(at(20)))
	assert.Nil(t, points[2].Value)
}

func TestToSwitchPoints(t *testing.T) {
	recs := []hass.HistoryRecord{
		rec("on", at(0)),
		rec("off", at(10)),
		rec("true", at(20)),
		rec("unavailable", at(30)),
	}

	points := toSwitchPoints(recs)
	require.Len(t, points, 4)
	assert.True(t, points[0].On)
	assert.False(t, points[1].On)
	assert.True(t, points[2].On)
	assert.False(t, points[3].On)
}

func TestFetchGraph_AlignsAndDerives(t *testing.T) {
	pool := hass.EntityID("sensor.pool_temperature")
	supply := hass.EntityID("sensor.heat_pump_supply_temperature")
	heating := hass.EntityID("binary_sensor.pool_heating_active")

	fetcher := &stubFetcher{history: map[hass.EntityID][]hass.HistoryRecord{
		pool: {
			rec("23.0", at(0)),
			rec("24.0", at(30)),
			rec("25.0", at(60)),
		},
		supply: {
			rec("35.0", at(0)),
			rec("40.0", at(60)),
		},
		heating: {
			rec("off", at(0)),
			rec("on", at(15)),
			rec("off", at(45)),
		},
	}}

	svc := newTestService(fetcher)
	data, err := svc.FetchGraph(context.Background(), GraphRequest{
		Entities: []hass.EntityID{pool, supply},
		Ranges: map[hass.EntityID]timeseries.Range{
			pool:   {Min: 20, Max: 30},
			supply: {Min: 20, Max: 60},
		},
		Start:          at(0),
		End:            at(60),
		PoolSensor:     pool,
		HeatingSensor:  heating,
		IntegralEntity: supply,
	})
	require.NoError(t, err)

	// Union grid of the charted entities: 0, 30, 60 minutes.
	require.Len(t, data.Aligned, 3)
	for _, p := range data.Aligned {
		for id, v := range p.Values {
			if v.Normalized != nil {
				assert.GreaterOrEqual(t, *v.Normalized, 0.0, "entity %s", id)
				assert.LessOrEqual(t, *v.Normalized, 100.0, "entity %s", id)
			}
		}
	}

	require.Len(t, data.Periods, 1)
	assert.True(t, data.Periods[0].Start.Equal(at(15)))
	assert.True(t, data.Periods[0].End.Equal(at(45)))

	assert.Len(t, data.Smoothed, 3)
	assert.Greater(t, data.Integrals.M60, 0.0)
	assert.NotEmpty(t, data.IntegralSeries.Points)
}

func TestFetchGraph_UnchartedPoolAndIntegralSensors(t *testing.T) {
	outdoor := hass.EntityID("sensor.outdoor_temperature")
	pool := hass.EntityID("sensor.pool_temperature")

	fetcher := &stubFetcher{history: map[hass.EntityID][]hass.HistoryRecord{
		outdoor: {rec("-3.0", at(0)), rec("-2.0", at(60))},
		pool: {
			rec("23.0", at(0)),
			rec("24.0", at(30)),
			rec("25.0", at(60)),
		},
	}}

	// The pool sensor drives smoothing and the integral but is not charted.
	svc := newTestService(fetcher)
	data, err := svc.FetchGraph(context.Background(), GraphRequest{
		Entities:       []hass.EntityID{outdoor},
		Start:          at(0),
		End:            at(60),
		PoolSensor:     pool,
		IntegralEntity: pool,
	})
	require.NoError(t, err)

	require.Len(t, data.Smoothed, 3)
	assert.Equal(t, 23.0, data.Smoothed[0].Value)
	assert.NotEmpty(t, data.IntegralSeries.Points)
	assert.Greater(t, data.Integrals.M60, 0.0)

	// Only charted entities appear on the aligned grid.
	require.Len(t, data.Aligned, 2)
	for _, p := range data.Aligned {
		_, ok := p.Values[pool]
		assert.False(t, ok)
	}
}

func TestFetchGraph_FetchErrorPropagates(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("socket closed")}
	svc := newTestService(fetcher)

	_, err := svc.FetchGraph(context.Background(), GraphRequest{
		Entities: []hass.EntityID{"sensor.pool_temperature"},
		Start:    at(0),
		End:      at(60),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSuperseded)
}

func TestFetchGraph_SupersededByNewerRequest(t *testing.T) {
	pool := hass.EntityID("sensor.pool_temperature")
	fetcher := &stubFetcher{history: map[hass.EntityID][]hass.HistoryRecord{
		pool: {rec("23.0", at(0))},
	}}
	svc := newTestService(fetcher)

	req := GraphRequest{
		Entities: []hass.EntityID{pool},
		Start:    at(0),
		End:      at(60),
	}

	// While the first fetch is in flight a second request is issued; the
	// first must come back superseded, the second must resolve.
	var second *GraphData
	var secondErr error
	fetcher.onFetch = func() {
		if fetcher.calls == 1 {
			inner := fetcher.onFetch
			fetcher.onFetch = nil
			second, secondErr = svc.FetchGraph(context.Background(), req)
			fetcher.onFetch = inner
		}
	}

	first, firstErr := svc.FetchGraph(context.Background(), req)
	assert.Nil(t, first)
	assert.ErrorIs(t, firstErr, ErrSuperseded)
	require.NoError(t, secondErr)
	require.NotNil(t, second)
	assert.Len(t, second.Aligned, 1)
}

func TestFetchGraph_EmptyHistory(t *testing.T) {
	fetcher := &stubFetcher{history: map[hass.EntityID][]hass.HistoryRecord{}}
	svc := newTestService(fetcher)

	data, err := svc.FetchGraph(context.Background(), GraphRequest{
		Entities:      []hass.EntityID{"sensor.pool_temperature"},
		Start:         at(0),
		End:           at(60),
		PoolSensor:    "sensor.pool_temperature",
		HeatingSensor: "binary_sensor.pool_heating_active",
	})
	require.NoError(t, err)
	assert.Empty(t, data.Aligned)
	assert.Empty(t, data.Periods)
	assert.Empty(t, data.Smoothed)
}

func TestFetchStatistics_Proxies(t *testing.T) {
	mean := 23.7
	fetcher := &stubFetcher{stats: map[hass.EntityID][]hass.StatRecord{
		"sensor.pool_temperature": {{Mean: &mean}},
	}}
	svc := newTestService(fetcher)

	out, err := svc.FetchStatistics(context.Background(), []hass.EntityID{"sensor.pool_temperature"}, at(0), at(60), "hour")
	require.NoError(t, err)
	require.Len(t, out["sensor.pool_temperature"], 1)
}
