package doselog

import "context"

// Repository is an append-only event log.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	// ListByDevice returns at most limit events for deviceID, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*Event, error)
}
