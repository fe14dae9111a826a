package patient

import (
	"context"
	"time"
)

// Repository persists patients. Lookups scoped by userID only match records
// the user owns or is a caregiver of; anything else is reported as
// apperr.NotFound. Writes that would give a device id to a second active
// patient fail with apperr.Conflict.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetVisible(ctx context.Context, id, userID string) (*Patient, error)
	ListVisible(ctx context.Context, userID string) ([]*Patient, error)
	Update(ctx context.Context, id, userID string, req UpdateRequest) (*Patient, error)
	Delete(ctx context.Context, id, userID string) error

	// ClaimByEmail reassigns every patient whose patientEmail matches to
	// userID and returns how many were changed.
	ClaimByEmail(ctx context.Context, email, userID string) (int64, error)

	// FindActiveByDevice returns the active patient holding deviceID.
	FindActiveByDevice(ctx context.Context, deviceID string) (*Patient, error)
	// DeviceInUse reports whether an active patient other than excludeID
	// holds deviceID.
	DeviceInUse(ctx context.Context, deviceID, excludeID string) (bool, error)
	// SetDevice stores the device fields of patient id.
	SetDevice(ctx context.Context, id string, deviceID *string, active bool) (*Patient, error)
	// TouchDevice stamps the last-seen time on the active patient holding
	// deviceID.
	TouchDevice(ctx context.Context, deviceID string, at time.Time) error
}
