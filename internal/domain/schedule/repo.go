package schedule

import "context"

// Repository stores one schedule per device id.
type Repository interface {
	// Get returns ErrNotFound when the device never stored a schedule.
	Get(ctx context.Context, deviceID string) (*Schedule, error)
	// Apply upserts the patch fields and returns the resulting schedule.
	Apply(ctx context.Context, p *Patch) (*Schedule, error)
}
