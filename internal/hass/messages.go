package hass

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntityID identifies one entity, conventionally "<domain>.<object_id>".
type EntityID string

// Domain returns the part before the first dot, e.g. "sensor".
func (id EntityID) Domain() string {
	if i := strings.IndexByte(string(id), '.'); i >= 0 {
		return string(id)[:i]
	}
	return string(id)
}

// ObjectID returns the part after the first dot.
func (id EntityID) ObjectID() string {
	if i := strings.IndexByte(string(id), '.'); i >= 0 {
		return string(id)[i+1:]
	}
	return string(id)
}

// Snapshot is the immutable last-known value of one entity. A new update
// replaces, never mutates, the prior snapshot for an id.
type Snapshot struct {
	EntityID    EntityID       `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// States the platform reports when an entity has no usable value.
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// CommandError is the error object attached to a failed result message.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed: %s: %s", e.Code, e.Message)
}

// serverMessage is the envelope for everything the server sends after auth.
type serverMessage struct {
	ID        uint64          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Success   *bool           `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *CommandError   `json:"error,omitempty"`
	Event     *eventPayload   `json:"event,omitempty"`
	Message   string          `json:"message,omitempty"`
	HAVersion string          `json:"ha_version,omitempty"`
}

// Server message types.
const (
	msgAuthRequired = "auth_required"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
	msgEvent        = "event"
)

// Client command types.
const (
	cmdAuth            = "auth"
	cmdGetStates       = "get_states"
	cmdSubscribeEvents = "subscribe_events"
	cmdCallService     = "call_service"
	cmdHistory         = "history/history_during_period"
	cmdStatistics      = "history/statistics_during_period"
)

const eventStateChanged = "state_changed"

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type eventPayload struct {
	EventType string           `json:"event_type"`
	Data      stateChangedData `json:"data"`
}

type stateChangedData struct {
	EntityID EntityID  `json:"entity_id"`
	NewState *Snapshot `json:"new_state"`
	OldState *Snapshot `json:"old_state"`
}

// HistoryRecord is one sample from history_during_period. The server emits
// either full field names or the compact minimal_response form (s/lu/lc/a);
// both decode into the same struct and are read through the accessors.
type HistoryRecord struct {
	EntityID    EntityID       `json:"entity_id,omitempty"`
	State       string         `json:"state,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
	LastChanged string         `json:"last_changed,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`

	S  string         `json:"s,omitempty"`
	LU float64        `json:"lu,omitempty"`
	LC float64        `json:"lc,omitempty"`
	A  map[string]any `json:"a,omitempty"`
}

// StateValue returns the recorded state regardless of response shape.
func (r *HistoryRecord) StateValue() string {
	if r.State != "" {
		return r.State
	}
	return r.S
}

// Time returns the record's last-updated timestamp. Compact records carry
// fractional epoch seconds, full records RFC3339 strings; last_changed is the
// fallback. ok is false when no field yields a usable timestamp.
func (r *HistoryRecord) Time() (t time.Time, ok bool) {
	if r.LU != 0 {
		return epochSeconds(r.LU), true
	}
	if r.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339, r.LastUpdated); err == nil {
			return ts, true
		}
	}
	if r.LC != 0 {
		return epochSeconds(r.LC), true
	}
	if r.LastChanged != "" {
		if ts, err := time.Parse(time.RFC3339, r.LastChanged); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func epochSeconds(sec float64) time.Time {
	return time.UnixMilli(int64(sec * 1000)).UTC()
}

// FlexTime decodes a timestamp that arrives either as epoch milliseconds or
// as an RFC3339 string, depending on server version.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse statistics timestamp %q: %w", s, err)
		}
		t.Time = ts
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// StatRecord is one row from statistics_during_period.
type StatRecord struct {
	Start FlexTime `json:"start"`
	End   FlexTime `json:"end"`
	Mean  *float64 `json:"mean,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Sum   *float64 `json:"sum,omitempty"`
	State *float64 `json:"state,omitempty"`
}
