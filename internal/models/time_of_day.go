package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is the approximate collection time requested by a citizen.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var timeOfDayLayouts = []string{"15:04", "15:04:05"}

// ParseTimeOfDay accepts HH:MM, and HH:MM:SS only when SS is 00. Slots have
// minute granularity.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	for _, layout := range timeOfDayLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q, seconds are not supported", raw)
		}
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:MM", raw)
}

// MustTimeOfDay panics on invalid input; meant for constants and tests.
func MustTimeOfDay(raw string) TimeOfDay {
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOf truncates t to its calendar date, expressed as midnight UTC so that
// dates compare and serialise independently of the caller's location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return d, nil
}
