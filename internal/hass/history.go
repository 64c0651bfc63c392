package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FetchHistory issues a bulk history_during_period query. The server answers
// either with an object keyed by entity id or with an array of per-entity
// arrays in request order; both normalize to the same map. History reads may
// run concurrently with live sync.
func (c *Client) FetchHistory(ctx context.Context, ids []EntityID, start, end time.Time, minimal bool) (map[EntityID][]HistoryRecord, error) {
	if len(ids) == 0 {
		return map[EntityID][]HistoryRecord{}, nil
	}

	started := time.Now()
	payload := map[string]any{
		"start_time": start.UTC().Format(time.RFC3339),
		"end_time":   end.UTC().Format(time.RFC3339),
		"entity_ids": ids,
	}
	if minimal {
		payload["minimal_response"] = true
		payload["no_attributes"] = true
	}

	raw, err := c.Request(ctx, cmdHistory, payload)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if c.metrics != nil {
		c.metrics.HistoryFetchDuration.WithLabelValues("history").Observe(time.Since(started).Seconds())
	}
	return normalizeHistoryResult(raw, ids)
}

// FetchStatistics issues a statistics_during_period query for the given
// period ("5minute", "hour", "day").
func (c *Client) FetchStatistics(ctx context.Context, ids []EntityID, start, end time.Time, period string) (map[EntityID][]StatRecord, error) {
	if len(ids) == 0 {
		return map[EntityID][]StatRecord{}, nil
	}

	started := time.Now()
	payload := map[string]any{
		"start_time":    start.UTC().Format(time.RFC3339),
		"end_time":      end.UTC().Format(time.RFC3339),
		"statistic_ids": ids,
		"period":        period,
	}

	raw, err := c.Request(ctx, cmdStatistics, payload)
	if err != nil {
		return nil, fmt.Errorf("fetch statistics: %w", err)
	}
	if c.metrics != nil {
		c.metrics.HistoryFetchDuration.WithLabelValues("statistics").Observe(time.Since(started).Seconds())
	}
	return normalizeStatisticsResult(raw, ids)
}

// normalizeHistoryResult collapses both observed response shapes into one
// canonical per-entity map so the rest of the pipeline sees a single shape.
func normalizeHistoryResult(raw json.RawMessage, ids []EntityID) (map[EntityID][]HistoryRecord, error) {
	out := make(map[EntityID][]HistoryRecord, len(ids))
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	var keyed map[EntityID][]HistoryRecord
	if err := json.Unmarshal(raw, &keyed); err == nil {
		for id, recs := range keyed {
			out[id] = recs
		}
		return out, nil
	}

	var ordered [][]HistoryRecord
	if err := json.Unmarshal(raw, &ordered); err != nil {
		return nil, fmt.Errorf("decode history result: %w", err)
	}
	for i, recs := range ordered {
		if len(recs) == 0 {
			continue
		}
		// First record of each series carries the entity id; fall back to
		// request order when it does not.
		id := recs[0].EntityID
		if id == "" && i < len(ids) {
			id = ids[i]
		}
		if id == "" {
			continue
		}
		out[id] = recs
	}
	return out, nil
}

func normalizeStatisticsResult(raw json.RawMessage, ids []EntityID) (map[EntityID][]StatRecord, error) {
	out := make(map[EntityID][]StatRecord, len(ids))
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	var keyed map[EntityID][]StatRecord
	if err := json.Unmarshal(raw, &keyed); err == nil {
		for id, recs := range keyed {
			out[id] = recs
		}
		return out, nil
	}

	var ordered [][]StatRecord
	if err := json.Unmarshal(raw, &ordered); err != nil {
		return nil, fmt.Errorf("decode statistics result: %w", err)
	}
	for i, recs := range ordered {
		if i >= len(ids) || len(recs) == 0 {
			continue
		}
		out[ids[i]] = recs
	}
	return out, nil
}
