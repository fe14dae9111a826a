package schedule

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medtrack/medtrack/internal/platform/apperr"
)

const (
	MsgDeviceIDRequired = "deviceId is required"
	MsgNoValidFields    = "No valid fields provided"
)

// Field is one slot assignment. A nil Value clears the slot.
type Field struct {
	Meal   string
	Timing string
	Value  *string
}

// Key is the dotted slot name, e.g. "morning.before".
func (f Field) Key() string {
	return f.Meal + "." + f.Timing
}

// Patch is a partial schedule update. Only slots named in Fields change.
type Patch struct {
	DeviceID string
	Fields   []Field
}

// ParsePatch decodes a schedule update body. Slots are written only when
// their key is present; a null or empty value clears the slot. Meal values
// that are not objects are ignored, as are unknown keys.
func ParsePatch(body []byte) (*Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperr.Validation("Invalid request body")
	}

	var deviceID string
	if v, ok := raw["deviceId"]; ok {
		_ = json.Unmarshal(v, &deviceID)
	}
	p := &Patch{DeviceID: strings.TrimSpace(deviceID)}
	if p.DeviceID == "" {
		return nil, apperr.Validation(MsgDeviceIDRequired)
	}

	for _, meal := range Meals {
		v, ok := raw[meal]
		if !ok {
			continue
		}
		var slot map[string]json.RawMessage
		if err := json.Unmarshal(v, &slot); err != nil || slot == nil {
			continue
		}
		for _, timing := range Timings {
			rv, ok := slot[timing]
			if !ok {
				continue
			}
			value, err := parseClock(rv)
			if err != nil {
				return nil, apperr.Validation(fmt.Sprintf("Invalid time for %s.%s; expected HH:MM", meal, timing))
			}
			p.Fields = append(p.Fields, Field{Meal: meal, Timing: timing, Value: value})
		}
	}

	if len(p.Fields) == 0 {
		return nil, apperr.Validation(MsgNoValidFields)
	}
	return p, nil
}

func parseClock(raw json.RawMessage) (*string, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil, nil
	}
	if !ValidClock(v) {
		return nil, fmt.Errorf("invalid clock %q", v)
	}
	return &v, nil
}
