package lab

import (
	"context"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/domain/lifecycle"
)

type LabRepository interface {
	Create(ctx context.Context, l *Lab) error
	GetByID(ctx context.Context, id uuid.UUID) (*Lab, error)
	GetByEmail(ctx context.Context, email string) (*Lab, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	GetSettings(ctx context.Context, labID uuid.UUID) (*Settings, error)
	UpsertSettings(ctx context.Context, labID uuid.UUID, s *Settings) error
}

type TestRepository interface {
	Create(ctx context.Context, t *Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*Test, error)
	List(ctx context.Context) ([]*Test, error)
	TopBooked(ctx context.Context, limit int) ([]*Test, error)
}

type BookingRepository interface {
	// Create stores b and increments the test's booked count.
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Booking, error)
	// ListPending returns globally pending bookings labID has not rejected.
	ListPending(ctx context.Context, labID uuid.UUID) ([]*Booking, error)
	// ListForLab returns bookings labID accepted plus the ones it rejected,
	// the latter with status rejected and the reason set.
	ListForLab(ctx context.Context, labID uuid.UUID) ([]*Booking, error)
	// Claim moves a pending booking to started for labID. It returns a conflict
	// error when the booking is no longer pending.
	Claim(ctx context.Context, bookingID, labID uuid.UUID, labName, doctor string) (*Booking, error)
	Reject(ctx context.Context, bookingID, labID uuid.UUID, reason string) error
	// Rejection returns labID's rejection reason, and whether one exists.
	Rejection(ctx context.Context, bookingID, labID uuid.UUID) (string, bool, error)
	// Update writes doctor, labName, notes and status. It only matches while the
	// stored status is still from and no report exists, and returns a conflict
	// error otherwise.
	Update(ctx context.Context, b *Booking, from lifecycle.TestStatus) error
	GetReport(ctx context.Context, bookingID uuid.UUID) (*Report, error)
	// SaveReport stores r, moves the booking started -> completed and sets
	// reportGenerated in one transaction. It returns a conflict error unless
	// labID owns a started booking without a report.
	SaveReport(ctx context.Context, labID uuid.UUID, r *Report) (*Booking, error)
}
