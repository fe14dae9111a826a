package user

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

var (
	ErrEmailTaken         = apperr.Conflict("Email already registered")
	ErrNotFound           = apperr.NotFound("User not found")
	ErrInvalidCredentials = apperr.Unauthenticated("Invalid credentials")
)

// PatientClaimer hands patient records created for an email address over to
// the account that signs up with it.
type PatientClaimer interface {
	ClaimByEmail(ctx context.Context, email, userID string) (int64, error)
}

type Service struct {
	repo     Repository
	patients PatientClaimer
	tokens   *auth.TokenIssuer
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientClaimer, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		tokens:   tokens,
		logger:   logger.With().Str("component", "user").Logger(),
	}
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, apperr.Validation("Missing fields")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("Name is required")
	}
	email := NormalizeEmail(req.Email)

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Wrap("Signup failed", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, apperr.Validation("Password is too long")
	}
	if err != nil {
		return nil, apperr.Store("Signup failed", err)
	}

	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         roleOrDefault(req.Role),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, apperr.Wrap("Signup failed", err)
	}

	if u.Role == auth.RolePatient && s.patients != nil {
		n, err := s.patients.ClaimByEmail(ctx, email, u.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", u.ID).Msg("failed to link patient records on signup")
		} else if n > 0 {
			s.logger.Info().Str("user_id", u.ID).Int64("patients", n).Msg("linked patient records on signup")
		}
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Wrap("Login failed", err)
	}

	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return nil, apperr.Store("Login failed", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.IssueToken(u.ID, roleOrDefault(u.Role))
	if err != nil {
		return nil, apperr.Store("Login failed", err)
	}

	resp := &LoginResponse{Token: token, Email: u.Email}
	if u.Name != "" {
		name := u.Name
		resp.Name = &name
	}
	return resp, nil
}
