package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/platform/apperr"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("domain", "medication").Logger(),
		now:    time.Now,
	}
}

// owned loads a medicine of userID. Another user's medicine is reported as
// missing.
func (s *Service) owned(ctx context.Context, userID, id uuid.UUID) (*Medicine, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, apperr.NotFound("medicine not found")
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*View, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*View, 0, len(list))
	for _, m := range list {
		out = append(out, NewView(m, now))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*View, error) {
	m, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return NewView(m, s.now()), nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, req NewMedicine) (*View, error) {
	m, err := req.toMedicine(userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info().Str("medicine_id", m.ID.String()).Str("user_id", userID.String()).Msg("medicine added")
	return NewView(m, s.now()), nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
