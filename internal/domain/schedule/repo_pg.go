package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/medtrack/medtrack/internal/platform/db"
)

type scheduleRepoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &scheduleRepoPG{q: q}
}

const scheduleCols = `device_id, morning_before, morning_after, afternoon_before,
	afternoon_after, night_before, night_after, updated_at`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	err := row.Scan(&s.DeviceID, &s.Morning.Before, &s.Morning.After,
		&s.Afternoon.Before, &s.Afternoon.After, &s.Night.Before, &s.Night.After,
		&s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.ID = s.DeviceID
	return &s, nil
}

// column maps a slot to its column. Meal and timing are validated by
// ParsePatch, so the result is always one of the schedule columns.
func column(f Field) string {
	return f.Meal + "_" + f.Timing
}

// upsertSQL builds an insert that on conflict only overwrites the patched
// columns.
func upsertSQL(p *Patch) (string, []any) {
	cols := []string{"device_id"}
	vals := []string{"$1"}
	sets := make([]string, 0, len(p.Fields)+1)
	args := []any{p.DeviceID}
	for i, f := range p.Fields {
		col := column(f)
		cols = append(cols, col)
		vals = append(vals, "$"+strconv.Itoa(i+2))
		sets = append(sets, col+" = EXCLUDED."+col)
		args = append(args, f.Value)
	}
	sets = append(sets, "updated_at = NOW()")

	sql := `INSERT INTO dose_schedules (` + strings.Join(cols, ", ") + `)
		VALUES (` + strings.Join(vals, ", ") + `)
		ON CONFLICT (device_id) DO UPDATE SET ` + strings.Join(sets, ", ") + `
		RETURNING ` + scheduleCols
	return sql, args
}

func (r *scheduleRepoPG) Get(ctx context.Context, deviceID string) (*Schedule, error) {
	s, err := scanSchedule(r.q.QueryRow(ctx,
		`SELECT `+scheduleCols+` FROM dose_schedules WHERE device_id = $1`, deviceID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

func (r *scheduleRepoPG) Apply(ctx context.Context, p *Patch) (*Schedule, error) {
	sql, args := upsertSQL(p)
	s, err := scanSchedule(r.q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, fmt.Errorf("upsert schedule: %w", err)
	}
	return s, nil
}
