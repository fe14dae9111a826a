package patient

import (
	"context"
	"strings"
	"time"

	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

const (
	MsgNotFound    = "Patient not found"
	MsgDeviceInUse = "Device is already linked to another patient. Please unlink it first."
)

// ErrNotFound and ErrDeviceInUse are what repositories return for a missing
// or invisible patient and for an active device id clash.
var (
	ErrNotFound    = apperr.NotFound(MsgNotFound)
	ErrDeviceInUse = apperr.Conflict(MsgDeviceInUse)
)

type Service struct {
	repo Repository
	now  func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for online computations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) views(patients []*Patient) []View {
	now := s.now()
	out := make([]View, 0, len(patients))
	for _, p := range patients {
		out = append(out, NewView(p, now))
	}
	return out
}

func (s *Service) List(ctx context.Context, userID string) ([]View, error) {
	patients, err := s.repo.ListVisible(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap("Failed to fetch patients", err)
	}
	return s.views(patients), nil
}

// Create registers a patient owned by userID. Caregivers are also listed in
// the caregivers set. A supplied device id is linked as active unless another
// active patient already holds it.
func (s *Service) Create(ctx context.Context, userID, role string, req CreateRequest) (*View, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("Name is required")
	}

	p := &Patient{
		UserID:         userID,
		Caregivers:     []string{},
		Name:           name,
		Age:            req.Age,
		CaregiverName:  strings.TrimSpace(req.CaregiverName),
		CaregiverPhone: strings.TrimSpace(req.CaregiverPhone),
		PatientEmail:   normalizeOptional(req.PatientEmail, NormalizeEmail),
		DeviceID:       normalizeOptional(req.DeviceID, strings.TrimSpace),
	}
	if role == auth.RoleCaregiver {
		p.Caregivers = []string{userID}
	}

	if p.HasDevice() {
		inUse, err := s.repo.DeviceInUse(ctx, *p.DeviceID, "")
		if err != nil {
			return nil, apperr.Wrap("Failed to create patient", err)
		}
		if inUse {
			return nil, ErrDeviceInUse
		}
		p.DeviceActive = true
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperr.Wrap("Failed to create patient", err)
	}
	v := NewView(p, s.now())
	return &v, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (*View, error) {
	p, err := s.repo.GetVisible(ctx, id, userID)
	if err != nil {
		return nil, apperr.Wrap("Failed to fetch patient", err)
	}
	v := NewView(p, s.now())
	return &v, nil
}

func (s *Service) Update(ctx context.Context, id, userID string, req UpdateRequest) (*View, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("Name is required")
		}
		req.Name = &name
	}
	if req.PatientEmail != nil {
		email := NormalizeEmail(*req.PatientEmail)
		req.PatientEmail = &email
	}
	if req.CaregiverName != nil {
		v := strings.TrimSpace(*req.CaregiverName)
		req.CaregiverName = &v
	}
	if req.CaregiverPhone != nil {
		v := strings.TrimSpace(*req.CaregiverPhone)
		req.CaregiverPhone = &v
	}

	var (
		p   *Patient
		err error
	)
	if req.Empty() {
		p, err = s.repo.GetVisible(ctx, id, userID)
	} else {
		p, err = s.repo.Update(ctx, id, userID, req)
	}
	if err != nil {
		return nil, apperr.Wrap("Failed to update patient", err)
	}
	v := NewView(p, s.now())
	return &v, nil
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return apperr.Wrap("Failed to delete patient", s.repo.Delete(ctx, id, userID))
}
