package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/domain/lifecycle"
)

type AppointmentRepository interface {
	// Create stores a and its initial history row.
	Create(ctx context.Context, a *Appointment, booked *StatusChange) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	// ListByDoctor filters by status when status is non-empty.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status lifecycle.AppointmentStatus) ([]*Appointment, error)
	// Transition moves the appointment from change.From to change.To and appends
	// change to the history in one transaction. It returns a conflict error when
	// the stored status is no longer change.From.
	Transition(ctx context.Context, change *StatusChange) (*Appointment, error)
	History(ctx context.Context, appointmentID uuid.UUID) ([]*StatusChange, error)
}
