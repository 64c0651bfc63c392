// Package history assembles chart-ready data: it fetches raw entity
// histories, aligns and normalizes them, and derives rolling integrals,
// heating periods and the smoothed pool series.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
	"github.com/sakumikko/lammonsaato-sub000/internal/logger"
	"github.com/sakumikko/lammonsaato-sub000/internal/observability"
	"github.com/sakumikko/lammonsaato-sub000/internal/timeseries"
)

// ErrSuperseded is returned when a newer request for the same graph was
// issued before this one resolved. The caller discards the result.
var ErrSuperseded = errors.New("graph request superseded")

// Fetcher is the read-only history interface of the connection client.
type Fetcher interface {
	FetchHistory(ctx context.Context, ids []hass.EntityID, start, end time.Time, minimal bool) (map[hass.EntityID][]hass.HistoryRecord, error)
	FetchStatistics(ctx context.Context, ids []hass.EntityID, start, end time.Time, period string) (map[hass.EntityID][]hass.StatRecord, error)
}

// Service fetches and derives graph data. Graph requests triggered by a
// changing parameter supersede each other: only the most recently issued
// request may deliver a result.
type Service struct {
	fetcher Fetcher
	smooth  timeseries.SmoothConfig
	log     *logger.Logger
	metrics *observability.Metrics

	token atomic.Uint64
}

// NewService creates a graph data service.
func NewService(fetcher Fetcher, smooth timeseries.SmoothConfig, log *logger.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		fetcher: fetcher,
		smooth:  smooth,
		log:     log,
		metrics: metrics,
	}
}

// GraphRequest describes one graph window.
type GraphRequest struct {
	// Entities chart on the common normalized grid.
	Entities []hass.EntityID
	// Ranges holds the per-entity normalization min/max.
	Ranges map[hass.EntityID]timeseries.Range
	// Start and End bound the query window.
	Start time.Time
	End   time.Time

	// PoolSensor, when set, additionally yields the smoothed pool series.
	PoolSensor hass.EntityID
	// HeatingSensor is the boolean sensor whose transitions gate smoothing.
	HeatingSensor hass.EntityID
	// IntegralEntity, when set, additionally yields the snapshot integrals
	// and the derived integral series of that entity's raw signal.
	IntegralEntity hass.EntityID
	// IntegralWindow sizes the derived integral series; zero means 60m.
	IntegralWindow time.Duration
}

// GraphData is the derived output for one graph window.
type GraphData struct {
	Aligned  []timeseries.AlignedPoint
	Periods  []timeseries.HeatingPeriod
	Smoothed []timeseries.SmoothedPoint

	Integrals      timeseries.IntegralWindows
	IntegralSeries timeseries.IntegralSeries
}

// FetchGraph resolves one graph request. It returns ErrSuperseded when a
// newer request was issued while this one was in flight; every other
// per-record problem is skipped, not fatal.
func (s *Service) FetchGraph(ctx context.Context, req GraphRequest) (*GraphData, error) {
	token := s.token.Add(1)

	// The pool, integral and heating sensors are fetched even when they are
	// not charted entities themselves.
	ids := make([]hass.EntityID, 0, len(req.Entities)+3)
	seen := make(map[hass.EntityID]bool, len(req.Entities)+3)
	add := func(id hass.EntityID) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range req.Entities {
		add(id)
	}
	add(req.PoolSensor)
	add(req.IntegralEntity)
	add(req.HeatingSensor)

	recs, err := s.fetcher.FetchHistory(ctx, ids, req.Start, req.End, true)
	if err != nil {
		return nil, fmt.Errorf("graph fetch: %w", err)
	}

	// Latest request wins: a result arriving after a newer request was
	// issued is discarded instead of overwriting fresher data.
	if s.token.Load() != token {
		if s.metrics != nil {
			s.metrics.GraphsSuperseded.Inc()
		}
		return nil, ErrSuperseded
	}

	series := make(map[hass.EntityID][]timeseries.RawPoint, len(req.Entities))
	var fetched, parsed int
	for _, id := range req.Entities {
		series[id] = toRawPoints(recs[id])
		fetched += len(recs[id])
		parsed += len(series[id])
	}
	if s.metrics != nil {
		s.metrics.HistoryRecordsParsed.Add(float64(parsed))
		s.metrics.HistoryRecordsBad.Add(float64(fetched - parsed))
	}

	// rawFor reuses the charted parse when the sensor is also a charted
	// entity, and parses its records directly otherwise.
	rawFor := func(id hass.EntityID) []timeseries.RawPoint {
		if pts, ok := series[id]; ok {
			return pts
		}
		return toRawPoints(recs[id])
	}

	data := &GraphData{
		Aligned: timeseries.Align(series, req.Ranges),
	}

	if req.HeatingSensor != "" {
		data.Periods = timeseries.HeatingPeriods(toSwitchPoints(recs[req.HeatingSensor]), req.End)
	}
	if req.PoolSensor != "" {
		data.Smoothed = timeseries.SmoothSpikes(toPoints(rawFor(req.PoolSensor)), data.Periods, s.smooth)
	}
	if req.IntegralEntity != "" {
		points := toPoints(rawFor(req.IntegralEntity))
		window := req.IntegralWindow
		if window == 0 {
			window = timeseries.Window60m
		}
		data.Integrals = timeseries.Integrals(points)
		data.IntegralSeries = timeseries.SeriesIntegral(points, window)
	}

	s.log.Debugw("graph resolved",
		"entities", len(req.Entities),
		"points", len(data.Aligned),
		"periods", len(data.Periods))
	return data, nil
}

// FetchStatistics proxies a long-range statistics query, normalized to the
// per-entity map shape.
func (s *Service) FetchStatistics(ctx context.Context, ids []hass.EntityID, start, end time.Time, period string) (map[hass.EntityID][]hass.StatRecord, error) {
	return s.fetcher.FetchStatistics(ctx, ids, start, end, period)
}
