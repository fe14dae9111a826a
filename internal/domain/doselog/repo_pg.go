package doselog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/platform/db"
)

type eventRepoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &eventRepoPG{q: q}
}

func (r *eventRepoPG) Append(ctx context.Context, e *Event) error {
	id := uuid.New()
	_, err := r.q.Exec(ctx, `
		INSERT INTO dose_events (id, device_id, date, meal, timing, scheduled_time, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, e.DeviceID, e.Date, e.Meal, e.Timing, e.ScheduledTime, e.Status, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert dose event: %w", err)
	}
	e.ID = id.String()
	return nil
}

func (r *eventRepoPG) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*Event, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, device_id, date, meal, timing, scheduled_time, status, timestamp
		FROM dose_events WHERE device_id = $1
		ORDER BY timestamp DESC LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list dose events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Date, &e.Meal, &e.Timing,
			&e.ScheduledTime, &e.Status, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan dose event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dose events: %w", err)
	}
	return events, nil
}
