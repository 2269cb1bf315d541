package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
	"github.com/medportal/portal/internal/platform/metrics"
)

var errBadCredentials = apperr.Unauthorized("invalid email or password")

type Service struct {
	users   UserRepository
	issuer  *auth.TokenIssuer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(users UserRepository, issuer *auth.TokenIssuer, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{users: users, issuer: issuer, metrics: m, logger: logger.With().Str("domain", "identity").Logger()}
}

// Signup validates req before touching the store, then creates the account
// and signs the user in.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{Name: req.Name, Email: req.Email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("patient signed up")
	return s.issue(u)
}

func (s *Service) Signin(ctx context.Context, req SigninRequest) (*AuthResponse, error) {
	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		s.metrics.RecordAuthAttempt(string(auth.RolePatient), false)
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.metrics.RecordAuthAttempt(string(auth.RolePatient), false)
		return nil, errBadCredentials
	}
	s.metrics.RecordAuthAttempt(string(auth.RolePatient), true)
	return s.issue(u)
}

func (s *Service) issue(u *User) (*AuthResponse, error) {
	token, _, err := s.issuer.Issue(u.ID.String(), auth.RolePatient)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: u, Token: token}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperr.Validation("name cannot be empty")
		}
		u.Name = name
	}
	if upd.Avatar != nil {
		u.Avatar = strings.TrimSpace(*upd.Avatar)
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
