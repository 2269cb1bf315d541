package hospital

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	GetByEmail(ctx context.Context, email string) (*Hospital, error)
	Update(ctx context.Context, h *Hospital) error
	GetSettings(ctx context.Context, hospitalID uuid.UUID) (*Settings, error)
	UpsertSettings(ctx context.Context, hospitalID uuid.UUID, s *Settings) error
	// ListPatients returns the distinct patients with appointments at any of
	// the hospital's doctors, most recent first.
	ListPatients(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error)
	// Billing sums completed appointment fees per doctor.
	Billing(ctx context.Context, hospitalID uuid.UUID) ([]DoctorBilling, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Doctor, error)
	List(ctx context.Context, specialization string, limit, offset int) ([]*Doctor, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
