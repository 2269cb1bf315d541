package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/medportal/portal/internal/platform/ai"
)

// ErrAcceptFields is returned before any request when an accept is missing
// the doctor or lab name.
var ErrAcceptFields = errors.New("doctor name and lab name are required")

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// -- Sign-in --

func (c *Client) SignInPatient(ctx context.Context, email, password string) (User, string, error) {
	var out struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/signin", credentials{email, password}, &out)
	return out.User, out.Token, err
}

func (c *Client) SignInHospital(ctx context.Context, email, password string) (Hospital, string, error) {
	var out struct {
		Hospital Hospital `json:"hospital"`
		Token    string   `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/hospital/login", credentials{email, password}, &out)
	return out.Hospital, out.Token, err
}

func (c *Client) SignInDoctor(ctx context.Context, email, password string) (Doctor, string, error) {
	var out struct {
		Doctor Doctor `json:"doctor"`
		Token  string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/doctors/login", credentials{email, password}, &out)
	return out.Doctor, out.Token, err
}

func (c *Client) SignInLab(ctx context.Context, email, password string) (Lab, string, error) {
	var out struct {
		Lab   Lab    `json:"lab"`
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/lab/login", credentials{email, password}, &out)
	return out.Lab, out.Token, err
}

// Logout revokes the client's token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Verify checks a hospital token. It satisfies session.Verifier.
func (c *Client) Verify(ctx context.Context, token string) error {
	return c.doWithToken(ctx, token, http.MethodGet, "/api/hospital/verify", nil, nil)
}

// -- Lab --

func (c *Client) PendingBookings(ctx context.Context, labID string) ([]Booking, error) {
	var out []Booking
	err := c.do(ctx, http.MethodGet, "/api/lab/pending-bookings/"+url.PathEscape(labID), nil, &out)
	return out, err
}

func (c *Client) LabTests(ctx context.Context, labID string) ([]Booking, error) {
	var out []Booking
	err := c.do(ctx, http.MethodGet, "/api/lab/lab-tests/"+url.PathEscape(labID), nil, &out)
	return out, err
}

type bookingResponse struct {
	Action  string `json:"action"`
	Doctor  string `json:"doctor,omitempty"`
	LabName string `json:"labName,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AcceptBooking claims a pending booking. Blank names fail locally.
func (c *Client) AcceptBooking(ctx context.Context, bookingID, doctor, labName string) (*Booking, error) {
	doctor, labName = strings.TrimSpace(doctor), strings.TrimSpace(labName)
	if doctor == "" || labName == "" {
		return nil, ErrAcceptFields
	}
	var out Booking
	err := c.do(ctx, http.MethodPost, "/api/lab/booking-response/"+url.PathEscape(bookingID),
		bookingResponse{Action: "accept", Doctor: doctor, LabName: labName}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RejectBooking(ctx context.Context, bookingID, reason string) (*Booking, error) {
	var out Booking
	err := c.do(ctx, http.MethodPost, "/api/lab/booking-response/"+url.PathEscape(bookingID),
		bookingResponse{Action: "reject", Reason: strings.TrimSpace(reason)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GenerateReport(ctx context.Context, bookingID string, req ReportRequest) (*BookingDetails, error) {
	var out BookingDetails
	if err := c.do(ctx, http.MethodPost, "/api/lab/generate-report/"+url.PathEscape(bookingID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -- Patient --

func (c *Client) MyAppointments(ctx context.Context) ([]Appointment, error) {
	var out []Appointment
	err := c.do(ctx, http.MethodGet, "/api/appointments/my-appointments", nil, &out)
	return out, err
}

func (c *Client) BookAppointment(ctx context.Context, req BookAppointment) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodPost, "/api/appointments/book", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelAppointment(ctx context.Context, id string) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodDelete, "/api/appointments/cancel/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BookTest(ctx context.Context, testID, bookingDate, notes string) (*Booking, error) {
	body := map[string]string{"bookingDate": bookingDate, "notes": notes}
	var out Booking
	if err := c.do(ctx, http.MethodPost, "/test-details/"+url.PathEscape(testID)+"/book", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BookedTests(ctx context.Context, userID string) ([]BookingDetails, error) {
	var out []BookingDetails
	err := c.do(ctx, http.MethodGet, "/test-report/"+url.PathEscape(userID)+"/booked-tests", nil, &out)
	return out, err
}

// -- AI --

func (c *Client) Insight(ctx context.Context, prompt string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodPost, "/api/ai/insights", map[string]string{"prompt": prompt}, &out)
	return out.Text, err
}

// InsightJSON asks for an insight and decodes the answer into v, tolerating
// code fences. A non-JSON answer gives ai.ErrInvalidFormat.
func (c *Client) InsightJSON(ctx context.Context, prompt string, v any) error {
	text, err := c.Insight(ctx, prompt)
	if err != nil {
		return err
	}
	return ai.DecodeJSON(text, v)
}
