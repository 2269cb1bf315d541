package hospital

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
)

type Hospital struct {
	ID                 uuid.UUID `json:"_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Address            string    `json:"address"`
	City               string    `json:"city"`
	RegistrationNumber string    `json:"registrationNumber"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Settings struct {
	NotificationEmail string    `json:"notificationEmail"`
	WorkingHours      string    `json:"workingHours"`
	EmergencyContact  string    `json:"emergencyContact"`
	Departments       []string  `json:"departments"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// Doctor belongs to exactly one hospital.
type Doctor struct {
	ID              uuid.UUID `json:"_id"`
	HospitalID      uuid.UUID `json:"hospitalId"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Specialization  string    `json:"specialization"`
	ConsultationFee float64   `json:"consultationFee"`
	AvailableSlots  []string  `json:"availableSlots"`
	Contact         string    `json:"contact"`
	Experience      int       `json:"experience"`
	PasswordHash    string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HasSlot reports whether slot is one of the doctor's advertised slots.
func (d *Doctor) HasSlot(slot string) bool {
	for _, s := range d.AvailableSlots {
		if s == slot {
			return true
		}
	}
	return false
}

type SignupRequest struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	ConfirmPassword    string `json:"confirmPassword"`
	Phone              string `json:"phone"`
	Address            string `json:"address"`
	City               string `json:"city"`
	RegistrationNumber string `json:"registrationNumber"`
}

func (r *SignupRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = auth.NormalizeEmail(r.Email)
	if r.Name == "" {
		return apperr.Validation("hospital name is required")
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

type ProfileUpdate struct {
	Name               *string `json:"name"`
	Phone              *string `json:"phone"`
	Address            *string `json:"address"`
	City               *string `json:"city"`
	RegistrationNumber *string `json:"registrationNumber"`
}

func (u ProfileUpdate) apply(h *Hospital) error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return apperr.Validation("hospital name cannot be empty")
		}
		h.Name = name
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&h.Phone, u.Phone)
	set(&h.Address, u.Address)
	set(&h.City, u.City)
	set(&h.RegistrationNumber, u.RegistrationNumber)
	return nil
}

type NewDoctor struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	Specialization  string   `json:"specialization"`
	ConsultationFee float64  `json:"consultationFee"`
	AvailableSlots  []string `json:"availableSlots"`
	Contact         string   `json:"contact"`
	Experience      int      `json:"experience"`
}

func (n *NewDoctor) Validate() error {
	n.Name = strings.TrimSpace(n.Name)
	n.Email = auth.NormalizeEmail(n.Email)
	n.Specialization = strings.TrimSpace(n.Specialization)
	if n.Name == "" {
		return apperr.Validation("doctor name is required")
	}
	if n.Specialization == "" {
		return apperr.Validation("specialization is required")
	}
	if err := auth.ValidateEmail(n.Email); err != nil {
		return err
	}
	if err := auth.ValidateNewPassword(n.Password, "", false); err != nil {
		return err
	}
	if n.ConsultationFee < 0 {
		return apperr.Validation("consultationFee cannot be negative")
	}
	if n.Experience < 0 {
		return apperr.Validation("experience cannot be negative")
	}
	slots := make([]string, 0, len(n.AvailableSlots))
	seen := make(map[string]bool, len(n.AvailableSlots))
	for _, s := range n.AvailableSlots {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		slots = append(slots, s)
	}
	n.AvailableSlots = slots
	return nil
}

type HospitalAuth struct {
	Hospital *Hospital `json:"hospital"`
	Token    string    `json:"token"`
}

type DoctorAuth struct {
	Doctor *Doctor `json:"doctor"`
	Token  string  `json:"token"`
}

// PatientSummary is a patient seen by at least one of the hospital's doctors.
type PatientSummary struct {
	ID              uuid.UUID `json:"_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Contact         string    `json:"contact"`
	Appointments    int       `json:"appointments"`
	LastAppointment time.Time `json:"lastAppointment"`
}

type DoctorBilling struct {
	DoctorID              uuid.UUID `json:"doctorId"`
	DoctorName            string    `json:"doctorName"`
	CompletedAppointments int       `json:"completedAppointments"`
	Total                 float64   `json:"total"`
}

type BillingSummary struct {
	Doctors               []DoctorBilling `json:"doctors"`
	CompletedAppointments int             `json:"completedAppointments"`
	GrandTotal            float64         `json:"grandTotal"`
}

func newBillingSummary(rows []DoctorBilling) *BillingSummary {
	b := &BillingSummary{Doctors: rows}
	if b.Doctors == nil {
		b.Doctors = []DoctorBilling{}
	}
	for _, r := range rows {
		b.CompletedAppointments += r.CompletedAppointments
		b.GrandTotal += r.Total
	}
	return b
}
