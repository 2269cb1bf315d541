// Package lab covers diagnostic labs: the public test catalog, patient test
// bookings, the shared pending queue labs accept from or reject, and the
// reports that complete a booking.
package lab

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/domain/lifecycle"
	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
)

type Lab struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	LabName      string    `json:"labName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type SignupRequest struct {
	LabName         string `json:"labName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r *SignupRequest) Validate() error {
	r.LabName = strings.TrimSpace(r.LabName)
	r.Email = auth.NormalizeEmail(r.Email)
	if r.LabName == "" {
		return apperr.Validation("labName is required")
	}
	if err := auth.ValidateEmail(r.Email); err != nil {
		return err
	}
	return auth.ValidateNewPassword(r.Password, r.ConfirmPassword, r.ConfirmPassword != "")
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LabAuth struct {
	Lab   *Lab   `json:"lab"`
	Token string `json:"token"`
}

// Test is a catalog entry patients can book.
type Test struct {
	ID              uuid.UUID  `json:"_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Price           float64    `json:"price"`
	TurnaroundHours int        `json:"turnaroundHours"`
	BookedCount     int        `json:"bookedCount"`
	CreatedBy       *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type NewTest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	Price           float64 `json:"price"`
	TurnaroundHours int     `json:"turnaroundHours"`
}

func (n *NewTest) Validate() error {
	n.Name = strings.TrimSpace(n.Name)
	n.Description = strings.TrimSpace(n.Description)
	n.Category = strings.TrimSpace(n.Category)
	if n.Name == "" {
		return apperr.Validation("test name is required")
	}
	if n.Price < 0 {
		return apperr.Validation("price cannot be negative")
	}
	if n.TurnaroundHours < 0 {
		return apperr.Validation("turnaroundHours cannot be negative")
	}
	if n.TurnaroundHours == 0 {
		n.TurnaroundHours = 24
	}
	return nil
}

// Booking is a patient's booking of a catalog test. Status is the global
// status except in a lab's own listings, where a booking that lab rejected is
// shown as rejected together with the reason.
type Booking struct {
	ID              uuid.UUID            `json:"_id"`
	PatientID       uuid.UUID            `json:"patient"`
	TestID          uuid.UUID            `json:"testId"`
	TestName        string               `json:"testName"`
	LabID           *uuid.UUID           `json:"labId,omitempty"`
	LabName         string               `json:"labName"`
	Doctor          string               `json:"doctor"`
	Status          lifecycle.TestStatus `json:"status"`
	ReportGenerated bool                 `json:"reportGenerated"`
	BookingDate     time.Time            `json:"bookingDate"`
	Notes           string               `json:"notes"`
	RejectionReason string               `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
	Actions         []lifecycle.Action   `json:"actions,omitempty"`
}

// OwnedBy reports whether labID accepted the booking.
func (b *Booking) OwnedBy(labID uuid.UUID) bool {
	return b.LabID != nil && *b.LabID == labID
}

type Parameter struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Unit   string `json:"unit"`
	Range  string `json:"range"`
	Status string `json:"status"`
}

type Report struct {
	BookingID       uuid.UUID   `json:"bookingId"`
	Parameters      []Parameter `json:"parameters"`
	Diagnosis       string      `json:"diagnosis"`
	Recommendations string      `json:"recommendations"`
	TechnicalNotes  string      `json:"technicalNotes"`
	AuthorizedBy    string      `json:"authorizedBy"`
	AIAssisted      bool        `json:"aiAssisted"`
	GeneratedAt     time.Time   `json:"generatedAt"`
}

type BookingDetails struct {
	*Booking
	Report *Report `json:"report,omitempty"`
}

type BookRequest struct {
	BookingDate string `json:"bookingDate"`
	Notes       string `json:"notes"`
}

const (
	ResponseAccept = "accept"
	ResponseReject = "reject"
)

type BookingResponse struct {
	Action  string `json:"action"`
	Doctor  string `json:"doctor"`
	LabName string `json:"labName"`
	Reason  string `json:"reason"`
}

// Validate runs before any store access. Accepting needs a doctor and a lab
// name.
func (r *BookingResponse) Validate() error {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.Doctor = strings.TrimSpace(r.Doctor)
	r.LabName = strings.TrimSpace(r.LabName)
	r.Reason = strings.TrimSpace(r.Reason)
	switch r.Action {
	case ResponseAccept:
		if r.Doctor == "" || r.LabName == "" {
			return apperr.Validation("doctor name and lab name are required")
		}
	case ResponseReject:
	default:
		return apperr.Validation("action must be accept or reject")
	}
	return nil
}

type TestUpdate struct {
	Doctor  *string `json:"doctor"`
	LabName *string `json:"labName"`
	Notes   *string `json:"notes"`
	Status  *string `json:"status"`
}

type ReportRequest struct {
	Parameters      []Parameter `json:"parameters"`
	Diagnosis       string      `json:"diagnosis"`
	Recommendations string      `json:"recommendations"`
	TechnicalNotes  string      `json:"technicalNotes"`
	AuthorizedBy    string      `json:"authorizedBy"`
	UseAI           bool        `json:"useAI"`
	Prompt          string      `json:"prompt"`
}

// Draft is the report shape requested from the AI service.
type Draft struct {
	Parameters      []Parameter `json:"parameters"`
	Diagnosis       string      `json:"diagnosis"`
	Recommendations string      `json:"recommendations"`
	TechnicalNotes  string      `json:"technicalNotes"`
}

type AIDraftRequest struct {
	Prompt string `json:"prompt"`
}

// Settings is the lab's stored settings row. It is exposed through the
// ProfileSettings and LabInfo views.
type Settings struct {
	ContactName     string
	ContactEmail    string
	Phone           string
	Address         string
	Accreditation   string
	OperatingHours  string
	ServicesOffered []string
	UpdatedAt       time.Time
}

type ProfileSettings struct {
	ContactName string `json:"contactName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type LabInfo struct {
	LabName         string   `json:"labName"`
	Address         string   `json:"address"`
	Accreditation   string   `json:"accreditation"`
	OperatingHours  string   `json:"operatingHours"`
	ServicesOffered []string `json:"servicesOffered"`
}
