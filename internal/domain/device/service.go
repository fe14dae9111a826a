package device

import (
	"context"
	"strings"
	"time"

	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

const (
	MsgCaregiverRequired  = "Caregiver access required for this patient"
	MsgNoDevice           = "Patient has no device linked"
	MsgActiveDeviceInUse  = "Device is already linked to another active patient. Please unlink it first."
	MsgDeviceNotActive    = "Device not found or not active"
	MsgDeviceIDRequired   = "deviceId is required"
	MsgPatientIDRequired  = "patientId is required"
	MsgLinkFieldsRequired = "patientId and deviceId are required"
)

var (
	ErrCaregiverRequired = apperr.Forbidden(MsgCaregiverRequired)
	ErrActiveDeviceInUse = apperr.Conflict(MsgActiveDeviceInUse)
	ErrDeviceNotActive   = apperr.NotFound(MsgDeviceNotActive)
)

// Service administers the device attached to a patient and records device
// liveness.
type Service struct {
	patients patient.Repository
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for heartbeat stamps and online computations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(patients patient.Repository, opts ...Option) *Service {
	s := &Service{patients: patients, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize returns the patient when userID is a caregiver who owns it or is
// listed among its caregivers. Every other case is ErrCaregiverRequired.
func (s *Service) Authorize(ctx context.Context, patientID, userID, role string) (*patient.Patient, error) {
	if role != auth.RoleCaregiver {
		return nil, ErrCaregiverRequired
	}
	p, err := s.patients.GetVisible(ctx, patientID, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrCaregiverRequired
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) Link(ctx context.Context, userID, role string, req LinkRequest) (*patient.View, error) {
	patientID := strings.TrimSpace(req.PatientID)
	deviceID := strings.TrimSpace(req.DeviceID)
	if patientID == "" || deviceID == "" {
		return nil, apperr.Validation(MsgLinkFieldsRequired)
	}

	p, err := s.Authorize(ctx, patientID, userID, role)
	if err != nil {
		return nil, apperr.Wrap("Failed to link device", err)
	}

	inUse, err := s.patients.DeviceInUse(ctx, deviceID, p.ID)
	if err != nil {
		return nil, apperr.Wrap("Failed to link device", err)
	}
	if inUse {
		return nil, patient.ErrDeviceInUse
	}

	p, err = s.patients.SetDevice(ctx, p.ID, &deviceID, true)
	if err != nil {
		return nil, apperr.Wrap("Failed to link device", err)
	}
	v := patient.NewView(p, s.now())
	return &v, nil
}

// Unlink clears the device id so the patient can later be linked to another
// device. Patient data is kept.
func (s *Service) Unlink(ctx context.Context, userID, role string, req PatientRequest) error {
	p, err := s.authorizeRequest(ctx, userID, role, req)
	if err != nil {
		return apperr.Wrap("Failed to unlink device", err)
	}
	_, err = s.patients.SetDevice(ctx, p.ID, nil, false)
	return apperr.Wrap("Failed to unlink device", err)
}

// Disable keeps the device id but marks it inactive.
func (s *Service) Disable(ctx context.Context, userID, role string, req PatientRequest) error {
	p, err := s.authorizeRequest(ctx, userID, role, req)
	if err != nil {
		return apperr.Wrap("Failed to disable device", err)
	}
	if !p.HasDevice() {
		return apperr.Validation(MsgNoDevice)
	}
	_, err = s.patients.SetDevice(ctx, p.ID, p.DeviceID, false)
	return apperr.Wrap("Failed to disable device", err)
}

// Enable reactivates the linked device unless another active patient holds
// the same id.
func (s *Service) Enable(ctx context.Context, userID, role string, req PatientRequest) error {
	p, err := s.authorizeRequest(ctx, userID, role, req)
	if err != nil {
		return apperr.Wrap("Failed to enable device", err)
	}
	if !p.HasDevice() {
		return apperr.Validation(MsgNoDevice)
	}

	inUse, err := s.patients.DeviceInUse(ctx, *p.DeviceID, p.ID)
	if err != nil {
		return apperr.Wrap("Failed to enable device", err)
	}
	if inUse {
		return ErrActiveDeviceInUse
	}

	if _, err := s.patients.SetDevice(ctx, p.ID, p.DeviceID, true); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return ErrActiveDeviceInUse
		}
		return apperr.Wrap("Failed to enable device", err)
	}
	return nil
}

func (s *Service) authorizeRequest(ctx context.Context, userID, role string, req PatientRequest) (*patient.Patient, error) {
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return nil, apperr.Validation(MsgPatientIDRequired)
	}
	return s.Authorize(ctx, patientID, userID, role)
}

// Heartbeat stamps the last-seen time of the active patient holding deviceID.
func (s *Service) Heartbeat(ctx context.Context, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return apperr.Validation(MsgDeviceIDRequired)
	}
	err := s.patients.TouchDevice(ctx, deviceID, s.now())
	if apperr.Is(err, apperr.KindNotFound) {
		return ErrDeviceNotActive
	}
	return apperr.Wrap("Failed to process heartbeat", err)
}
