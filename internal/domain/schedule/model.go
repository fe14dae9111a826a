package schedule

import (
	"regexp"
	"time"
)

const (
	MealMorning   = "morning"
	MealAfternoon = "afternoon"
	MealNight     = "night"

	TimingBefore = "before"
	TimingAfter  = "after"
)

// Meals and Timings list the slot coordinates in display order.
var (
	Meals   = []string{MealMorning, MealAfternoon, MealNight}
	Timings = []string{TimingBefore, TimingAfter}
)

func ValidMeal(m string) bool {
	return m == MealMorning || m == MealAfternoon || m == MealNight
}

func ValidTiming(t string) bool {
	return t == TimingBefore || t == TimingAfter
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidClock reports whether s is a 24h HH:MM time of day.
func ValidClock(s string) bool {
	return clockPattern.MatchString(s)
}

// Slot holds the before- and after-meal dose times of one meal. Nil means
// no dose.
type Slot struct {
	Before *string `json:"before" bson:"before"`
	After  *string `json:"after" bson:"after"`
}

func (s *Slot) get(timing string) *string {
	if timing == TimingBefore {
		return s.Before
	}
	return s.After
}

func (s *Slot) set(timing string, v *string) {
	if timing == TimingBefore {
		s.Before = v
	} else {
		s.After = v
	}
}

// Schedule is the daily dose timetable of one device.
type Schedule struct {
	ID        string     `json:"_id"`
	DeviceID  string     `json:"deviceId"`
	Morning   Slot       `json:"morning"`
	Afternoon Slot       `json:"afternoon"`
	Night     Slot       `json:"night"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Default is the schedule served for a device that never stored one.
func Default(deviceID string) *Schedule {
	return &Schedule{ID: deviceID, DeviceID: deviceID}
}

func (s *Schedule) slot(meal string) *Slot {
	switch meal {
	case MealMorning:
		return &s.Morning
	case MealAfternoon:
		return &s.Afternoon
	default:
		return &s.Night
	}
}

// Time returns the dose time of a slot.
func (s *Schedule) Time(meal, timing string) *string {
	return s.slot(meal).get(timing)
}

// Apply writes the patch fields into s.
func (s *Schedule) Apply(p *Patch) {
	for _, f := range p.Fields {
		s.slot(f.Meal).set(f.Timing, f.Value)
	}
}
