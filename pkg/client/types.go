package client

import (
	"errors"
	"time"
)

var errMissingID = errors.New("profile has no id")

type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

func (u User) Validate() error {
	if u.ID == "" {
		return errMissingID
	}
	return nil
}

type Hospital struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	City  string `json:"city,omitempty"`
}

func (h Hospital) Validate() error {
	if h.ID == "" {
		return errMissingID
	}
	return nil
}

type Doctor struct {
	ID              string   `json:"_id"`
	HospitalID      string   `json:"hospitalId"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Specialization  string   `json:"specialization"`
	ConsultationFee float64  `json:"consultationFee"`
	AvailableSlots  []string `json:"availableSlots,omitempty"`
}

func (d Doctor) Validate() error {
	if d.ID == "" {
		return errMissingID
	}
	return nil
}

type Lab struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	LabName string `json:"labName"`
}

func (l Lab) Validate() error {
	if l.ID == "" {
		return errMissingID
	}
	return nil
}

type Appointment struct {
	ID              string    `json:"_id"`
	DoctorID        string    `json:"doctor"`
	PatientID       string    `json:"patient"`
	PatientName     string    `json:"patientName"`
	AppointmentDate time.Time `json:"appointmentDate"`
	TimeSlot        string    `json:"timeSlot,omitempty"`
	ConsultationFee float64   `json:"consultationFee"`
	Status          string    `json:"status"`
	Actions         []string  `json:"actions,omitempty"`
}

type BookAppointment struct {
	DoctorID        string `json:"doctor"`
	PatientName     string `json:"patientName"`
	PatientContact  string `json:"patientContact,omitempty"`
	PatientEmail    string `json:"patientEmail,omitempty"`
	AppointmentDate string `json:"appointmentDate"`
	TimeSlot        string `json:"timeSlot,omitempty"`
}

type Booking struct {
	ID              string    `json:"_id"`
	PatientID       string    `json:"patient"`
	TestID          string    `json:"testId"`
	TestName        string    `json:"testName"`
	LabID           string    `json:"labId,omitempty"`
	LabName         string    `json:"labName"`
	Doctor          string    `json:"doctor"`
	Status          string    `json:"status"`
	ReportGenerated bool      `json:"reportGenerated"`
	BookingDate     time.Time `json:"bookingDate"`
	Notes           string    `json:"notes"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	Actions         []string  `json:"actions,omitempty"`
}

type Parameter struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Unit   string `json:"unit"`
	Range  string `json:"range"`
	Status string `json:"status"`
}

type Report struct {
	Parameters      []Parameter `json:"parameters"`
	Diagnosis       string      `json:"diagnosis"`
	Recommendations string      `json:"recommendations"`
	TechnicalNotes  string      `json:"technicalNotes"`
	AuthorizedBy    string      `json:"authorizedBy"`
	AIAssisted      bool        `json:"aiAssisted"`
	GeneratedAt     time.Time   `json:"generatedAt"`
}

type BookingDetails struct {
	Booking
	Report *Report `json:"report,omitempty"`
}

type ReportRequest struct {
	Parameters      []Parameter `json:"parameters,omitempty"`
	Diagnosis       string      `json:"diagnosis,omitempty"`
	Recommendations string      `json:"recommendations,omitempty"`
	TechnicalNotes  string      `json:"technicalNotes,omitempty"`
	AuthorizedBy    string      `json:"authorizedBy,omitempty"`
	UseAI           bool        `json:"useAI,omitempty"`
	Prompt          string      `json:"prompt,omitempty"`
}
