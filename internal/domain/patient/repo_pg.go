package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medtrack/medtrack/internal/platform/db"
)

const activeDeviceConstraint = "patients_active_device_key"

type patientRepoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &patientRepoPG{q: q}
}

const patientCols = `id::text, user_id::text, caregivers::text[], name, age,
	caregiver_name, caregiver_phone, patient_email, device_id, device_active,
	device_last_seen, created_at, updated_at`

const visibleClause = `(user_id = $2 OR $2 = ANY(caregivers))`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.Caregivers, &p.Name, &p.Age,
		&p.CaregiverName, &p.CaregiverPhone, &p.PatientEmail, &p.DeviceID,
		&p.DeviceActive, &p.DeviceLastSeen, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Caregivers == nil {
		p.Caregivers = []string{}
	}
	return &p, nil
}

func (r *patientRepoPG) scanOne(row pgx.Row, op string) (*Patient, error) {
	p, err := scanPatient(row)
	switch {
	case err == nil:
		return p, nil
	case db.IsNoRows(err):
		return nil, ErrNotFound
	case db.IsUniqueViolation(err, activeDeviceConstraint):
		return nil, ErrDeviceInUse
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// parseIDs validates the uuid arguments of a scoped lookup.
func parseIDs(ids ...string) ([]uuid.UUID, bool) {
	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if _, ok := parseIDs(p.UserID); !ok {
		return fmt.Errorf("invalid owner id %q", p.UserID)
	}
	id := uuid.New()
	caregivers := p.Caregivers
	if caregivers == nil {
		caregivers = []string{}
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO patients (id, user_id, caregivers, name, age, caregiver_name,
			caregiver_phone, patient_email, device_id, device_active)
		VALUES ($1, $2, $3::uuid[], $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		id, p.UserID, caregivers, p.Name, p.Age, p.CaregiverName,
		p.CaregiverPhone, p.PatientEmail, p.DeviceID, p.DeviceActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, activeDeviceConstraint) {
			return ErrDeviceInUse
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	p.ID = id.String()
	p.Caregivers = caregivers
	return nil
}

func (r *patientRepoPG) GetVisible(ctx context.Context, id, userID string) (*Patient, error) {
	ids, ok := parseIDs(id, userID)
	if !ok {
		return nil, ErrNotFound
	}
	return r.scanOne(r.q.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND `+visibleClause,
		ids[0], ids[1]), "get patient")
}

func (r *patientRepoPG) ListVisible(ctx context.Context, userID string) ([]*Patient, error) {
	ids, ok := parseIDs(userID)
	if !ok {
		return []*Patient{}, nil
	}
	rows, err := r.q.Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE user_id = $1 OR $1 = ANY(caregivers) ORDER BY created_at`,
		ids[0])
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepoPG) Update(ctx context.Context, id, userID string, req UpdateRequest) (*Patient, error) {
	ids, ok := parseIDs(id, userID)
	if !ok {
		return nil, ErrNotFound
	}
	return r.scanOne(r.q.QueryRow(ctx, `
		UPDATE patients SET
			name = COALESCE($3, name),
			age = COALESCE($4, age),
			caregiver_name = COALESCE($5, caregiver_name),
			caregiver_phone = COALESCE($6, caregiver_phone),
			patient_email = CASE WHEN $7::text IS NULL THEN patient_email ELSE NULLIF($7, '') END,
			updated_at = NOW()
		WHERE id = $1 AND `+visibleClause+`
		RETURNING `+patientCols,
		ids[0], ids[1], req.Name, req.Age, req.CaregiverName, req.CaregiverPhone, req.PatientEmail,
	), "update patient")
}

func (r *patientRepoPG) Delete(ctx context.Context, id, userID string) error {
	ids, ok := parseIDs(id, userID)
	if !ok {
		return ErrNotFound
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM patients WHERE id = $1 AND `+visibleClause, ids[0], ids[1])
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) ClaimByEmail(ctx context.Context, email, userID string) (int64, error) {
	ids, ok := parseIDs(userID)
	if !ok {
		return 0, fmt.Errorf("invalid user id %q", userID)
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE patients SET user_id = $2, updated_at = NOW() WHERE patient_email = $1`,
		email, ids[0])
	if err != nil {
		return 0, fmt.Errorf("claim patients: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *patientRepoPG) FindActiveByDevice(ctx context.Context, deviceID string) (*Patient, error) {
	return r.scanOne(r.q.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE device_id = $1 AND device_active`,
		deviceID), "find patient by device")
}

func (r *patientRepoPG) DeviceInUse(ctx context.Context, deviceID, excludeID string) (bool, error) {
	exclude := uuid.Nil
	if id, err := uuid.Parse(excludeID); err == nil {
		exclude = id
	}
	var inUse bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE device_id = $1 AND device_active AND id <> $2)`,
		deviceID, exclude).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("check device holder: %w", err)
	}
	return inUse, nil
}

func (r *patientRepoPG) SetDevice(ctx context.Context, id string, deviceID *string, active bool) (*Patient, error) {
	ids, ok := parseIDs(id)
	if !ok {
		return nil, ErrNotFound
	}
	return r.scanOne(r.q.QueryRow(ctx, `
		UPDATE patients SET device_id = $2, device_active = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+patientCols,
		ids[0], deviceID, active), "set device")
}

func (r *patientRepoPG) TouchDevice(ctx context.Context, deviceID string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE patients SET device_last_seen = $2 WHERE device_id = $1 AND device_active`,
		deviceID, at.UTC())
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
