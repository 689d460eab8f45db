// File: internal/action/params.go
package action

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// coerceFloat converts the heterogeneous numeric encodings models actually
// emit (JSON number, integer, json.Number, numeric string) into a float64.
func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Float extracts the first present key from the bag as a float64.
func (a Action) Float(keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := a.Params[key]; ok {
			if f, valid := coerceFloat(v); valid {
				return f, true
			}
		}
	}
	return 0, false
}

// String extracts the first present key from the bag as a string.
func (a Action) String(keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := a.Params[key]; ok {
			if s, isString := v.(string); isString {
				return s, true
			}
		}
	}
	return "", false
}

// Point extracts an x/y coordinate pair. Both members accept any numeric
// encoding; nothing is normalized here, the executor owns viewport scaling.
func (a Action) Point() (x, y float64, ok bool) {
	x, okX := a.Float("x")
	y, okY := a.Float("y")
	return x, y, okX && okY
}

// ScrollDeltas extracts the scroll axes, accepting either the long
// scroll_x/scrollX form or the x/y shorthand. A missing axis defaults to 0.
func (a Action) ScrollDeltas() (dx, dy float64) {
	dx, okX := a.Float("scroll_x", "scrollX", "x")
	dy, okY := a.Float("scroll_y", "scrollY", "y")
	if !okX {
		dx = 0
	}
	if !okY {
		dy = 0
	}
	return dx, dy
}

// PathPoint is one vertex of a drag path.
type PathPoint struct {
	X float64
	Y float64
}

// Path extracts the drag path from the "path" parameter, tolerating both
// []{"x":..,"y":..} objects and nested value encodings.
func (a Action) Path() []PathPoint {
	raw, ok := a.Params["path"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	points := make([]PathPoint, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		x, okX := coerceFloat(entry["x"])
		y, okY := coerceFloat(entry["y"])
		if okX && okY {
			points = append(points, PathPoint{X: x, Y: y})
		}
	}
	return points
}

// Keys extracts the keypress key list. Accepts a JSON array of strings or a
// single string under "keys" or "key".
func (a Action) Keys() []string {
	for _, key := range []string{"keys", "key"} {
		raw, ok := a.Params[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				return []string{v}
			}
		case []any:
			keys := make([]string, 0, len(v))
			for _, item := range v {
				if s, isString := item.(string); isString && s != "" {
					keys = append(keys, s)
				}
			}
			if len(keys) > 0 {
				return keys
			}
		}
	}
	return nil
}

// waitSecondKeys carry values expressed in seconds; everything else in the
// alias list is milliseconds.
var (
	waitMilliKeys  = []string{"ms", "duration", "timeout", "time"}
	waitSecondKeys = []string{"seconds", "secs", "s"}
)

// WaitDuration extracts the pause length for a wait action from its several
// alias keys, falling back to fallback when nothing usable is present.
func (a Action) WaitDuration(fallback time.Duration) time.Duration {
	if f, ok := a.Float(waitMilliKeys...); ok && f > 0 {
		return time.Duration(f * float64(time.Millisecond))
	}
	if f, ok := a.Float(waitSecondKeys...); ok && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
