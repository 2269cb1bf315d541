package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/domain/lifecycle"
	"github.com/medportal/portal/internal/platform/apperr"
)

const dateLayout = "2006-01-02"

type Appointment struct {
	ID              uuid.UUID                   `json:"_id"`
	DoctorID        uuid.UUID                   `json:"doctor"`
	PatientID       uuid.UUID                   `json:"patient"`
	PatientName     string                      `json:"patientName"`
	PatientContact  string                      `json:"patientContact"`
	PatientEmail    string                      `json:"patientEmail"`
	AppointmentDate time.Time                   `json:"appointmentDate"`
	TimeSlot        string                      `json:"timeSlot,omitempty"`
	ConsultationFee float64                     `json:"consultationFee"`
	Status          lifecycle.AppointmentStatus `json:"status"`
	CreatedAt       time.Time                   `json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
}

// StatusChange is one row of an appointment's status history. From is empty
// for the booking itself.
type StatusChange struct {
	AppointmentID uuid.UUID                   `json:"appointmentId"`
	From          lifecycle.AppointmentStatus `json:"from"`
	To            lifecycle.AppointmentStatus `json:"to"`
	ChangedBy     uuid.UUID                   `json:"changedBy"`
	ChangedRole   string                      `json:"changedRole"`
	ChangedAt     time.Time                   `json:"changedAt"`
}

// View is an appointment together with the actions its viewer may take.
type View struct {
	*Appointment
	Actions []lifecycle.Action `json:"actions"`
}

type BookRequest struct {
	Doctor          string `json:"doctor"`
	PatientName     string `json:"patientName"`
	PatientContact  string `json:"patientContact"`
	PatientEmail    string `json:"patientEmail"`
	AppointmentDate string `json:"appointmentDate"`
	TimeSlot        string `json:"timeSlot"`
}

// parsed is a validated BookRequest.
type parsed struct {
	doctorID uuid.UUID
	date     time.Time
}

func (r *BookRequest) validate() (parsed, error) {
	r.PatientName = strings.TrimSpace(r.PatientName)
	r.PatientContact = strings.TrimSpace(r.PatientContact)
	r.PatientEmail = strings.TrimSpace(strings.ToLower(r.PatientEmail))
	r.TimeSlot = strings.TrimSpace(r.TimeSlot)

	var p parsed
	if strings.TrimSpace(r.Doctor) == "" {
		return p, apperr.Validation("doctor is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(r.Doctor))
	if err != nil {
		return p, apperr.Validation("invalid doctor id")
	}
	p.doctorID = id
	if r.PatientName == "" {
		return p, apperr.Validation("patientName is required")
	}
	if strings.TrimSpace(r.AppointmentDate) == "" {
		return p, apperr.Validation("appointmentDate is required")
	}
	date, err := ParseDate(r.AppointmentDate)
	if err != nil {
		return p, err
	}
	p.date = date
	return p, nil
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp and truncates it
// to the UTC day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Validation("appointmentDate must be YYYY-MM-DD")
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

type StatusUpdate struct {
	Status string `json:"status"`
}
