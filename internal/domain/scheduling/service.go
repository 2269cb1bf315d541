package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/domain/hospital"
	"github.com/medportal/portal/internal/domain/lifecycle"
	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
	"github.com/medportal/portal/internal/platform/metrics"
	"github.com/medportal/portal/internal/platform/websocket"
)

// DoctorLookup resolves doctors for booking and access checks.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*hospital.Doctor, error)
}

// Viewer is the authenticated caller.
type Viewer struct {
	ID   uuid.UUID
	Role auth.Role
}

type Service struct {
	appointments AppointmentRepository
	doctors      DoctorLookup
	events       websocket.EventPublisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func NewService(appts AppointmentRepository, doctors DoctorLookup, events websocket.EventPublisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if events == nil {
		events = websocket.NopPublisher{}
	}
	return &Service{
		appointments: appts,
		doctors:      doctors,
		events:       events,
		metrics:      m,
		logger:       logger.With().Str("domain", "scheduling").Logger(),
	}
}

// Book creates a Pending appointment for patientID. The fee is copied from the
// doctor and a time slot, when given, must be one the doctor offers.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, req BookRequest) (*Appointment, error) {
	p, err := req.validate()
	if err != nil {
		return nil, err
	}
	if y, m, d := today().Date(); p.date.Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)) {
		return nil, apperr.Validation("appointmentDate cannot be in the past")
	}
	doc, err := s.doctors.GetDoctor(ctx, p.doctorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("doctor not found")
	}
	if err != nil {
		return nil, err
	}
	if req.TimeSlot != "" && !doc.HasSlot(req.TimeSlot) {
		return nil, apperr.Validation("time slot %q is not offered by this doctor", req.TimeSlot)
	}

	a := &Appointment{
		DoctorID:        doc.ID,
		PatientID:       patientID,
		PatientName:     req.PatientName,
		PatientContact:  req.PatientContact,
		PatientEmail:    req.PatientEmail,
		AppointmentDate: p.date,
		TimeSlot:        req.TimeSlot,
		ConsultationFee: doc.ConsultationFee,
		Status:          lifecycle.AppointmentPending,
	}
	booked := &StatusChange{To: lifecycle.AppointmentPending, ChangedBy: patientID, ChangedRole: string(auth.RolePatient)}
	if err := s.appointments.Create(ctx, a, booked); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Time("date", a.AppointmentDate).
		Msg("appointment booked")
	s.publish(ctx, "appointment.booked", websocket.UserTopic(a.DoctorID.String()), a)
	return a, nil
}

func (s *Service) MyAppointments(ctx context.Context, patientID uuid.UUID) ([]*View, error) {
	list, err := s.appointments.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return views(list, lifecycle.ActorPatient), nil
}

// Cancel lets a patient cancel their own appointment while it is Pending.
func (s *Service) Cancel(ctx context.Context, patientID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.PatientID != patientID {
		return nil, apperr.Forbidden("not your appointment")
	}
	if a.Status != lifecycle.AppointmentPending {
		return nil, apperr.Conflict("only pending appointments can be cancelled, this one is %s", a.Status)
	}
	return s.transition(ctx, a, lifecycle.AppointmentCancelled, Viewer{ID: patientID, Role: auth.RolePatient})
}

// UpdateStatus applies a doctor's status change after checking the lifecycle
// table. A rejected change leaves the stored appointment untouched.
func (s *Service) UpdateStatus(ctx context.Context, doctorID, id uuid.UUID, status string) (*Appointment, error) {
	to, err := lifecycle.ParseAppointmentStatus(status)
	if err != nil {
		return nil, apperr.Validation("invalid status %q", status)
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, apperr.Forbidden("not your appointment")
	}
	if err := lifecycle.ValidateAppointmentTransition(a.Status, to); err != nil {
		return nil, apperr.Wrap(apperr.ErrConflict, err, "cannot change status from "+string(a.Status)+" to "+string(to))
	}
	return s.transition(ctx, a, to, Viewer{ID: doctorID, Role: auth.RoleDoctor})
}

func (s *Service) transition(ctx context.Context, a *Appointment, to lifecycle.AppointmentStatus, by Viewer) (*Appointment, error) {
	change := &StatusChange{
		AppointmentID: a.ID,
		From:          a.Status,
		To:            to,
		ChangedBy:     by.ID,
		ChangedRole:   string(by.Role),
	}
	updated, err := s.appointments.Transition(ctx, change)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("appointment", string(change.From), string(change.To))
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("from", string(change.From)).
		Str("to", string(change.To)).
		Str("by", string(by.Role)).
		Msg("appointment status changed")

	s.publish(ctx, "appointment.status", websocket.PatientTopic(updated.PatientID.String()), updated)
	if by.Role != auth.RoleDoctor {
		s.publish(ctx, "appointment.status", websocket.UserTopic(updated.DoctorID.String()), updated)
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, eventType, topic string, a *Appointment) {
	ev := websocket.NewEvent(eventType, topic, "appointment", a.ID.String(), a)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("publish appointment event")
	}
}

// authorize reports whether v may read a. Allowed are the patient, the doctor
// and the doctor's hospital.
func (s *Service) authorize(ctx context.Context, v Viewer, a *Appointment) (lifecycle.Actor, error) {
	switch v.Role {
	case auth.RolePatient:
		if a.PatientID == v.ID {
			return lifecycle.ActorPatient, nil
		}
	case auth.RoleDoctor:
		if a.DoctorID == v.ID {
			return lifecycle.ActorDoctor, nil
		}
	case auth.RoleHospital:
		doc, err := s.doctors.GetDoctor(ctx, a.DoctorID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return "", err
		}
		if err == nil && doc.HospitalID == v.ID {
			return "", nil
		}
	}
	return "", apperr.Forbidden("not allowed to view this appointment")
}

func (s *Service) Get(ctx context.Context, v Viewer, id uuid.UUID) (*View, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor, err := s.authorize(ctx, v, a)
	if err != nil {
		return nil, err
	}
	return newView(a, actor), nil
}

func (s *Service) History(ctx context.Context, v Viewer, id uuid.UUID) ([]*StatusChange, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, v, a); err != nil {
		return nil, err
	}
	hist, err := s.appointments.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = []*StatusChange{}
	}
	return hist, nil
}

// ForDoctor lists a doctor's appointments for the doctor or their hospital.
func (s *Service) ForDoctor(ctx context.Context, v Viewer, doctorID uuid.UUID, status string) ([]*View, error) {
	var filter lifecycle.AppointmentStatus
	if status != "" {
		st, err := lifecycle.ParseAppointmentStatus(status)
		if err != nil {
			return nil, apperr.Validation("invalid status %q", status)
		}
		filter = st
	}

	actor := lifecycle.Actor("")
	switch v.Role {
	case auth.RoleDoctor:
		if v.ID != doctorID {
			return nil, apperr.Forbidden("not allowed to view another doctor's appointments")
		}
		actor = lifecycle.ActorDoctor
	case auth.RoleHospital:
		doc, err := s.doctors.GetDoctor(ctx, doctorID)
		if err != nil {
			return nil, err
		}
		if doc.HospitalID != v.ID {
			return nil, apperr.Forbidden("doctor belongs to another hospital")
		}
	default:
		return nil, apperr.Forbidden("not allowed to view doctor appointments")
	}

	list, err := s.appointments.ListByDoctor(ctx, doctorID, filter)
	if err != nil {
		return nil, err
	}
	return views(list, actor), nil
}

func newView(a *Appointment, actor lifecycle.Actor) *View {
	actions := lifecycle.AppointmentActions(a.Status, actor)
	if actions == nil {
		actions = []lifecycle.Action{}
	}
	return &View{Appointment: a, Actions: actions}
}

func views(list []*Appointment, actor lifecycle.Actor) []*View {
	out := make([]*View, 0, len(list))
	for _, a := range list {
		out = append(out, newView(a, actor))
	}
	return out
}

// today is overridden in tests.
var today = func() time.Time { return time.Now().UTC() }
