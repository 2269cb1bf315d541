// Package medication tracks a patient's medicine courses and warns when a
// course is about to run out.
package medication

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/platform/apperr"
)

// RefillThresholdDays is the number of remaining days at or below which a
// medicine needs a refill.
const RefillThresholdDays = 15

const dateLayout = "2006-01-02"

type Medicine struct {
	ID             uuid.UUID  `json:"_id"`
	UserID         uuid.UUID  `json:"userId"`
	Name           string     `json:"name"`
	Dosage         string     `json:"dosage"`
	Frequency      string     `json:"frequency"`
	StartDate      time.Time  `json:"startDate"`
	EndDate        time.Time  `json:"endDate"`
	RefillWarnedAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// View is a medicine as returned to clients, with the derived refill fields.
type View struct {
	*Medicine
	RemainingDays int  `json:"remainingDays"`
	RefillWarning bool `json:"refillWarning"`
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RemainingDays counts whole days from now to end, never below zero.
func RemainingDays(end, now time.Time) int {
	n := int(day(end).Sub(day(now)).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

func NewView(m *Medicine, now time.Time) *View {
	left := RemainingDays(m.EndDate, now)
	return &View{Medicine: m, RemainingDays: left, RefillWarning: left <= RefillThresholdDays}
}

type NewMedicine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperr.Validation("%s is required", field)
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return day(t), nil
	}
	return time.Time{}, apperr.Validation("%s must be YYYY-MM-DD", field)
}

func (n *NewMedicine) toMedicine(userID uuid.UUID) (*Medicine, error) {
	m := &Medicine{
		UserID:    userID,
		Name:      strings.TrimSpace(n.Name),
		Dosage:    strings.TrimSpace(n.Dosage),
		Frequency: strings.TrimSpace(n.Frequency),
	}
	if m.Name == "" || m.Dosage == "" || m.Frequency == "" {
		return nil, apperr.Validation("name, dosage and frequency are required")
	}
	var err error
	if m.StartDate, err = parseDate("startDate", n.StartDate); err != nil {
		return nil, err
	}
	if m.EndDate, err = parseDate("endDate", n.EndDate); err != nil {
		return nil, err
	}
	if m.EndDate.Before(m.StartDate) {
		return nil, apperr.Validation("endDate cannot be before startDate")
	}
	return m, nil
}
