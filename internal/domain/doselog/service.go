package doselog

import (
	"context"
	"strings"
	"time"

	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/pkg/pagination"
)

const MsgDeviceNotLinked = "Device not linked to an active patient"

var ErrDeviceNotLinked = apperr.Forbidden(MsgDeviceNotLinked)

type Service struct {
	repo     Repository
	patients patient.Repository
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, patients patient.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, patients: patients, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) requireActive(ctx context.Context, deviceID, failMsg string) error {
	if _, err := s.patients.FindActiveByDevice(ctx, deviceID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return ErrDeviceNotLinked
		}
		return apperr.Wrap(failMsg, err)
	}
	return nil
}

// Record validates and stores a device-reported event. The timestamp is
// assigned here.
func (s *Service) Record(ctx context.Context, req EventRequest) (*Event, error) {
	e, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, e.DeviceID, "Failed to record dose"); err != nil {
		return nil, err
	}

	e.Timestamp = s.now().UTC()
	if err := s.repo.Append(ctx, e); err != nil {
		return nil, apperr.Wrap("Failed to record dose", err)
	}
	return e, nil
}

// History returns the newest events of deviceID. limit is clamped to the
// dose history page policy.
func (s *Service) History(ctx context.Context, deviceID string, limit int) ([]*Event, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, apperr.Validation("deviceId is required")
	}
	if err := s.requireActive(ctx, deviceID, "Failed to fetch dose history"); err != nil {
		return nil, err
	}

	events, err := s.repo.ListByDevice(ctx, deviceID, pagination.DoseHistory.Clamp(limit))
	if err != nil {
		return nil, apperr.Wrap("Failed to fetch dose history", err)
	}
	return events, nil
}
