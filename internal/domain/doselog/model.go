package doselog

import (
	"strings"
	"time"

	"github.com/medtrack/medtrack/internal/domain/schedule"
	"github.com/medtrack/medtrack/internal/platform/apperr"
)

const (
	StatusTaken  = "taken"
	StatusMissed = "missed"
)

// Event records whether a scheduled dose was taken. Events are never
// changed after they are written.
type Event struct {
	ID            string    `json:"_id"`
	DeviceID      string    `json:"deviceId"`
	Date          string    `json:"date"`
	Meal          string    `json:"meal"`
	Timing        string    `json:"timing"`
	ScheduledTime string    `json:"scheduledTime"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventRequest is the payload a device reports.
type EventRequest struct {
	DeviceID      string `json:"deviceId"`
	Date          string `json:"date"`
	Meal          string `json:"meal"`
	Timing        string `json:"timing"`
	ScheduledTime string `json:"scheduledTime"`
	Status        string `json:"status"`
}

func validStatus(s string) bool {
	return s == StatusTaken || s == StatusMissed
}

// Validate checks r field by field and reports the first failure.
func (r EventRequest) Validate() (*Event, error) {
	deviceID := strings.TrimSpace(r.DeviceID)
	switch {
	case deviceID == "":
		return nil, apperr.Validation("deviceId is required")
	case r.Date == "":
		return nil, apperr.Validation("date is required")
	case !schedule.ValidMeal(r.Meal):
		return nil, apperr.Validation("meal must be one of morning/afternoon/night")
	case !schedule.ValidTiming(r.Timing):
		return nil, apperr.Validation("timing must be before/after")
	case r.ScheduledTime == "":
		return nil, apperr.Validation("scheduledTime is required")
	case !validStatus(r.Status):
		return nil, apperr.Validation("status must be taken/missed")
	}
	return &Event{
		DeviceID:      deviceID,
		Date:          r.Date,
		Meal:          r.Meal,
		Timing:        r.Timing,
		ScheduledTime: r.ScheduledTime,
		Status:        r.Status,
	}, nil
}
