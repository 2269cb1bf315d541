// Package lifecycle holds the closed status types for appointments and lab test
// bookings together with their transition tables. Services consult these tables
// before persisting any status change.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownStatus     = errors.New("unknown status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// AppointmentStatus is the status of a doctor appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "Pending"
	AppointmentConfirmed AppointmentStatus = "Confirmed"
	AppointmentCompleted AppointmentStatus = "Completed"
	AppointmentCancelled AppointmentStatus = "Cancelled"
)

// TestStatus is the global status of a lab test booking.
type TestStatus string

const (
	TestPending   TestStatus = "pending"
	TestStarted   TestStatus = "started"
	TestCompleted TestStatus = "completed"
	TestRejected  TestStatus = "rejected"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:   {AppointmentConfirmed, AppointmentCancelled},
	AppointmentConfirmed: {AppointmentCompleted},
	AppointmentCompleted: {},
	AppointmentCancelled: {},
}

var testTransitions = map[TestStatus][]TestStatus{
	TestPending:   {TestStarted, TestRejected},
	TestStarted:   {TestCompleted},
	TestCompleted: {},
	TestRejected:  {},
}

// ParseAppointmentStatus parses s case-insensitively.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	for status := range appointmentTransitions {
		if strings.EqualFold(string(status), strings.TrimSpace(s)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: appointment status %q", ErrUnknownStatus, s)
}

// ParseTestStatus parses s case-insensitively.
func ParseTestStatus(s string) (TestStatus, error) {
	for status := range testTransitions {
		if strings.EqualFold(string(status), strings.TrimSpace(s)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: test status %q", ErrUnknownStatus, s)
}

// Valid reports whether s is a known appointment status.
func (s AppointmentStatus) Valid() bool {
	_, ok := appointmentTransitions[s]
	return ok
}

// IsTerminal reports whether s allows no further transitions.
func (s AppointmentStatus) IsTerminal() bool {
	next, ok := appointmentTransitions[s]
	return ok && len(next) == 0
}

// Valid reports whether s is a known test status.
func (s TestStatus) Valid() bool {
	_, ok := testTransitions[s]
	return ok
}

// IsTerminal reports whether s allows no further transitions.
func (s TestStatus) IsTerminal() bool {
	next, ok := testTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionAppointment reports whether from -> to is an allowed move.
func CanTransitionAppointment(from, to AppointmentStatus) bool {
	for _, s := range appointmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionTest reports whether from -> to is an allowed move.
func CanTransitionTest(from, to TestStatus) bool {
	for _, s := range testTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateAppointmentTransition returns ErrUnknownStatus or ErrInvalidTransition
// when from -> to may not be applied.
func ValidateAppointmentTransition(from, to AppointmentStatus) error {
	if !from.Valid() {
		return fmt.Errorf("%w: appointment status %q", ErrUnknownStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: appointment status %q", ErrUnknownStatus, to)
	}
	if !CanTransitionAppointment(from, to) {
		return fmt.Errorf("%w: appointment %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateTestTransition is ValidateAppointmentTransition for test bookings.
func ValidateTestTransition(from, to TestStatus) error {
	if !from.Valid() {
		return fmt.Errorf("%w: test status %q", ErrUnknownStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: test status %q", ErrUnknownStatus, to)
	}
	if !CanTransitionTest(from, to) {
		return fmt.Errorf("%w: test %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
