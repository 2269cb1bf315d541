package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Medicine, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// DueForRefill returns unwarned medicines ending within [from, until].
	DueForRefill(ctx context.Context, from, until time.Time) ([]*Medicine, error)
	// MarkWarned stamps the refill warning once. It reports false when the
	// medicine was already warned or is gone.
	MarkWarned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}
