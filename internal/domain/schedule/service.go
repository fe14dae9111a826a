package schedule

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

const (
	MsgDeviceNotLinked      = "Device not linked to an active patient"
	MsgCaregiverNotAssigned = "Caregiver is not assigned to this patient"
)

var (
	ErrNotFound             = apperr.NotFound("Schedule not found")
	ErrDeviceNotLinked      = apperr.Forbidden(MsgDeviceNotLinked)
	ErrCaregiverNotAssigned = apperr.Forbidden(MsgCaregiverNotAssigned)
)

// Publisher pushes an updated schedule to its device.
type Publisher interface {
	PublishSchedule(ctx context.Context, s *Schedule) error
}

type Service struct {
	repo             Repository
	patients         patient.Repository
	publisher        Publisher
	strictCaregivers bool
	logger           zerolog.Logger
}

type Option func(*Service)

// WithPublisher sends every stored update to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithStrictCaregivers requires caregivers to be listed in the patient's
// caregivers set. Ownership alone is not enough.
func WithStrictCaregivers(strict bool) Option {
	return func(s *Service) { s.strictCaregivers = strict }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "schedule").Logger() }
}

func NewService(repo Repository, patients patient.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, patients: patients, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored schedule or the default one.
func (s *Service) Get(ctx context.Context, deviceID string) (*Schedule, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, apperr.Validation(MsgDeviceIDRequired)
	}
	sched, err := s.repo.Get(ctx, deviceID)
	if apperr.Is(err, apperr.KindNotFound) {
		return Default(deviceID), nil
	}
	if err != nil {
		return nil, apperr.Wrap("Failed to fetch dose times", err)
	}
	return sched, nil
}

// Update applies p for the caller. The device must be held by an active
// patient, and caregivers must manage that patient.
func (s *Service) Update(ctx context.Context, userID, role string, p *Patch) (*Schedule, error) {
	holder, err := s.patients.FindActiveByDevice(ctx, p.DeviceID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrDeviceNotLinked
		}
		return nil, apperr.Wrap("Failed to update dose times", err)
	}

	if role == auth.RoleCaregiver {
		allowed := holder.ManagedBy(userID)
		if s.strictCaregivers {
			allowed = holder.HasCaregiver(userID)
		}
		if !allowed {
			return nil, ErrCaregiverNotAssigned
		}
	}

	sched, err := s.repo.Apply(ctx, p)
	if err != nil {
		return nil, apperr.Wrap("Failed to update dose times", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSchedule(ctx, sched); err != nil {
			s.logger.Warn().Err(err).Str("device_id", sched.DeviceID).Msg("failed to publish schedule")
		}
	}
	return sched, nil
}
