package derived

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
)

// Reader is the read side of the entity cache.
type Reader interface {
	Get(id hass.EntityID) (hass.Snapshot, bool)
}

func usable(state string) bool {
	return state != "" && state != hass.StateUnknown && state != hass.StateUnavailable
}

// parseNumeric parses an entity state as a float. Unknown, unavailable and
// non-numeric states yield def, never NaN.
func parseNumeric(state string, def float64) float64 {
	if !usable(state) {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(state), 64)
	if err != nil {
		return def
	}
	return v
}

// parseBool treats exactly "on" and "true" as true; anything else, unknown
// and unavailable included, is false.
func parseBool(state string) bool {
	return state == "on" || state == "true"
}

// parseMode returns state when it is one of allowed, otherwise def.
func parseMode(state string, allowed []string, def string) string {
	if !usable(state) {
		return def
	}
	for _, m := range allowed {
		if state == m {
			return state
		}
	}
	return def
}

// parseISOTime parses an ISO datetime state; the zero time is the default.
func parseISOTime(state string) time.Time {
	if !usable(state) {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, state); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseTimeOfDay extracts "HH:MM" from an input_datetime snapshot. It accepts
// an ISO datetime state, a bare HH:MM[:SS] state, or hour/minute attributes;
// otherwise it returns the empty string.
func parseTimeOfDay(s hass.Snapshot) string {
	state := s.State
	if usable(state) {
		if i := strings.IndexByte(state, 'T'); i >= 0 && len(state) >= i+6 {
			return state[i+1 : i+6]
		}
		if len(state) >= 5 && state[2] == ':' {
			if _, err := time.Parse("15:04", state[:5]); err == nil {
				return state[:5]
			}
		}
	}
	hour, okH := attrInt(s.Attributes, "hour")
	minute, okM := attrInt(s.Attributes, "minute")
	if okH && okM {
		return fmt.Sprintf("%02d:%02d", hour, minute)
	}
	return ""
}

func attrInt(attrs map[string]any, key string) (int, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Cache accessors. Every field has a defined default when its source entity
// is absent.

func numericEntity(r Reader, id hass.EntityID, def float64) float64 {
	s, ok := r.Get(id)
	if !ok {
		return def
	}
	return parseNumeric(s.State, def)
}

func boolEntity(r Reader, id hass.EntityID) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	return parseBool(s.State)
}

func modeEntity(r Reader, id hass.EntityID, allowed []string, def string) string {
	s, ok := r.Get(id)
	if !ok {
		return def
	}
	return parseMode(s.State, allowed, def)
}

func timeOfDayEntity(r Reader, id hass.EntityID) string {
	s, ok := r.Get(id)
	if !ok {
		return ""
	}
	return parseTimeOfDay(s)
}

func isoTimeEntity(r Reader, id hass.EntityID) time.Time {
	s, ok := r.Get(id)
	if !ok {
		return time.Time{}
	}
	return parseISOTime(s.State)
}
