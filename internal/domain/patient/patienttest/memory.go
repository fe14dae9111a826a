// Package patienttest provides an in-memory patient.Repository for tests of
// packages that depend on patients.
package patienttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/patient"
)

// Repo is a map-backed patient.Repository. Setting Err makes every call fail
// with it.
type Repo struct {
	mu       sync.Mutex
	patients map[string]*patient.Patient
	seq      int
	order    map[string]int

	Err error
}

func NewRepo() *Repo {
	return &Repo{
		patients: make(map[string]*patient.Patient),
		order:    make(map[string]int),
	}
}

// Put stores p as is, assigning an id when it has none.
func (r *Repo) Put(p *patient.Patient) *patient.Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Caregivers == nil {
		p.Caregivers = []string{}
	}
	r.seq++
	r.order[p.ID] = r.seq
	r.patients[p.ID] = p
	return p
}

// Get returns the stored patient without visibility checks.
func (r *Repo) Get(id string) (*patient.Patient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	return p, ok
}

func (r *Repo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patients)
}

func (r *Repo) activeHolder(deviceID, excludeID string) *patient.Patient {
	for id, p := range r.patients {
		if id != excludeID && p.DeviceActive && p.DeviceID != nil && *p.DeviceID == deviceID {
			return p
		}
	}
	return nil
}

func (r *Repo) Create(_ context.Context, p *patient.Patient) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	if p.DeviceActive && p.HasDevice() && r.activeHolder(*p.DeviceID, "") != nil {
		r.mu.Unlock()
		return patient.ErrDeviceInUse
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.mu.Unlock()
	r.Put(p)
	return nil
}

func (r *Repo) GetVisible(_ context.Context, id, userID string) (*patient.Patient, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || !p.ManagedBy(userID) {
		return nil, patient.ErrNotFound
	}
	return p, nil
}

func (r *Repo) ListVisible(_ context.Context, userID string) ([]*patient.Patient, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*patient.Patient{}
	for _, p := range r.patients {
		if p.ManagedBy(userID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.order[out[i].ID] < r.order[out[j].ID] })
	return out, nil
}

func (r *Repo) Update(ctx context.Context, id, userID string, req patient.UpdateRequest) (*patient.Patient, error) {
	p, err := r.GetVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Age != nil {
		p.Age = req.Age
	}
	if req.CaregiverName != nil {
		p.CaregiverName = *req.CaregiverName
	}
	if req.CaregiverPhone != nil {
		p.CaregiverPhone = *req.CaregiverPhone
	}
	if req.PatientEmail != nil {
		if *req.PatientEmail == "" {
			p.PatientEmail = nil
		} else {
			email := *req.PatientEmail
			p.PatientEmail = &email
		}
	}
	p.UpdatedAt = time.Now().UTC()
	return p, nil
}

func (r *Repo) Delete(ctx context.Context, id, userID string) error {
	if _, err := r.GetVisible(ctx, id, userID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.patients, id)
	return nil
}

func (r *Repo) ClaimByEmail(_ context.Context, email, userID string) (int64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.patients {
		if p.PatientEmail != nil && *p.PatientEmail == email {
			p.UserID = userID
			n++
		}
	}
	return n, nil
}

func (r *Repo) FindActiveByDevice(_ context.Context, deviceID string) (*patient.Patient, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.activeHolder(deviceID, ""); p != nil {
		return p, nil
	}
	return nil, patient.ErrNotFound
}

func (r *Repo) DeviceInUse(_ context.Context, deviceID, excludeID string) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeHolder(deviceID, excludeID) != nil, nil
}

func (r *Repo) SetDevice(_ context.Context, id string, deviceID *string, active bool) (*patient.Patient, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	if active && deviceID != nil && r.activeHolder(*deviceID, id) != nil {
		return nil, patient.ErrDeviceInUse
	}
	p.DeviceID = deviceID
	p.DeviceActive = active
	p.UpdatedAt = time.Now().UTC()
	return p, nil
}

func (r *Repo) TouchDevice(_ context.Context, deviceID string, at time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.activeHolder(deviceID, "")
	if p == nil {
		return patient.ErrNotFound
	}
	seen := at.UTC()
	p.DeviceLastSeen = &seen
	return nil
}

var _ patient.Repository = (*Repo)(nil)
