package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/domain/hospital"
	"github.com/medportal/portal/internal/domain/lifecycle"
	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
	"github.com/medportal/portal/internal/platform/websocket"
)

// -- Mocks --

type mockAppointmentRepo struct {
	mu      sync.Mutex
	appts   map[uuid.UUID]*Appointment
	history map[uuid.UUID][]*StatusChange
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{
		appts:   make(map[uuid.UUID]*Appointment),
		history: make(map[uuid.UUID][]*StatusChange),
	}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment, booked *StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	booked.AppointmentID = a.ID
	booked.ChangedAt = a.CreatedAt
	bc := *booked
	m.history[a.ID] = append(m.history[a.ID], &bc)
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) filter(keep func(*Appointment) bool) []*Appointment {
	var out []*Appointment
	for _, a := range m.appts {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(out[j].AppointmentDate) })
	return out
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, id uuid.UUID) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a *Appointment) bool { return a.PatientID == id }), nil
}

func (m *mockAppointmentRepo) ListByDoctor(_ context.Context, id uuid.UUID, status lifecycle.AppointmentStatus) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a *Appointment) bool {
		return a.DoctorID == id && (status == "" || a.Status == status)
	}), nil
}

func (m *mockAppointmentRepo) Transition(_ context.Context, c *StatusChange) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[c.AppointmentID]
	if !ok || a.Status != c.From {
		return nil, apperr.Conflict("appointment is no longer %s", c.From)
	}
	a.Status = c.To
	a.UpdatedAt = time.Now()
	c.ChangedAt = a.UpdatedAt
	cc := *c
	m.history[a.ID] = append(m.history[a.ID], &cc)
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) History(_ context.Context, id uuid.UUID) ([]*StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*StatusChange(nil), m.history[id]...), nil
}

type mockDoctors map[uuid.UUID]*hospital.Doctor

func (m mockDoctors) GetDoctor(_ context.Context, id uuid.UUID) (*hospital.Doctor, error) {
	d, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Topic)
	}
	return out
}

type fixture struct {
	svc      *Service
	repo     *mockAppointmentRepo
	events   *recordingPublisher
	doctor   *hospital.Doctor
	hospital uuid.UUID
	patient  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orig := today
	today = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { today = orig })

	hospitalID := uuid.New()
	doc := &hospital.Doctor{
		ID:              uuid.New(),
		HospitalID:      hospitalID,
		Name:            "Dr. Rao",
		ConsultationFee: 750,
		AvailableSlots:  []string{"10:00", "11:00"},
	}
	repo := newMockAppointmentRepo()
	events := &recordingPublisher{}
	svc := NewService(repo, mockDoctors{doc.ID: doc}, events, nil, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, events: events, doctor: doc, hospital: hospitalID, patient: uuid.New()}
}

func (f *fixture) book(t *testing.T) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), f.patient, BookRequest{
		Doctor:          f.doctor.ID.String(),
		PatientName:     "Ana",
		PatientContact:  "555-0100",
		AppointmentDate: "2026-03-10",
		TimeSlot:        "10:00",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	return a
}

func (f *fixture) doctorViewer() Viewer  { return Viewer{ID: f.doctor.ID, Role: auth.RoleDoctor} }
func (f *fixture) patientViewer() Viewer { return Viewer{ID: f.patient, Role: auth.RolePatient} }

func TestBook_CopiesFeeAndStartsPending(t *testing.T) {
	f := newFixture(t)
	a := f.book(t)

	if a.Status != lifecycle.AppointmentPending {
		t.Errorf("expected Pending, got %s", a.Status)
	}
	if a.ConsultationFee != 750 {
		t.Errorf("expected fee copied from doctor, got %v", a.ConsultationFee)
	}
	if a.AppointmentDate != time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected date %v", a.AppointmentDate)
	}
	hist := f.repo.history[a.ID]
	if len(hist) != 1 || hist[0].From != "" || hist[0].To != lifecycle.AppointmentPending {
		t.Errorf("expected booking history row, got %+v", hist)
	}
	if got := f.events.topics(); len(got) != 1 || got[0] != websocket.UserTopic(f.doctor.ID.String()) {
		t.Errorf("expected doctor notification, got %v", got)
	}
}

func TestBook_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *BookRequest)
	}{
		{"missing doctor", func(r *BookRequest) { r.Doctor = "" }},
		{"bad doctor id", func(r *BookRequest) { r.Doctor = "dr-1" }},
		{"unknown doctor", func(r *BookRequest) { r.Doctor = uuid.NewString() }},
		{"missing name", func(r *BookRequest) { r.PatientName = "  " }},
		{"missing date", func(r *BookRequest) { r.AppointmentDate = "" }},
		{"bad date", func(r *BookRequest) { r.AppointmentDate = "next tuesday" }},
		{"past date", func(r *BookRequest) { r.AppointmentDate = "2026-02-27" }},
		{"slot not offered", func(r *BookRequest) { r.TimeSlot = "23:00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := BookRequest{Doctor: f.doctor.ID.String(), PatientName: "Ana", AppointmentDate: "2026-03-10", TimeSlot: "10:00"}
			tt.mutate(&req)
			if _, err := f.svc.Book(context.Background(), f.patient, req); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if len(f.repo.appts) != 0 {
				t.Error("nothing should be stored")
			}
		})
	}
}

func TestBook_RFC3339DateAndNoSlot(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Book(context.Background(), f.patient, BookRequest{
		Doctor: f.doctor.ID.String(), PatientName: "Ana", AppointmentDate: "2026-03-05T18:30:00Z",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if a.AppointmentDate.Day() != 5 || a.AppointmentDate.Hour() != 0 {
		t.Errorf("expected day truncation, got %v", a.AppointmentDate)
	}
}

func TestUpdateStatus_FollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	if _, err := f.svc.UpdateStatus(ctx, f.doctor.ID, a.ID, "Completed"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("Pending -> Completed must conflict, got %v", err)
	}
	if got, _ := f.repo.GetByID(ctx, a.ID); got.Status != lifecycle.AppointmentPending {
		t.Fatalf("rejected transition must not change state, got %s", got.Status)
	}

	updated, err := f.svc.UpdateStatus(ctx, f.doctor.ID, a.ID, "confirmed")
	if err != nil || updated.Status != lifecycle.AppointmentConfirmed {
		t.Fatalf("confirm: %v, %v", updated, err)
	}
	updated, err = f.svc.UpdateStatus(ctx, f.doctor.ID, a.ID, "Completed")
	if err != nil || updated.Status != lifecycle.AppointmentCompleted {
		t.Fatalf("complete: %v, %v", updated, err)
	}
	for _, s := range []string{"Pending", "Confirmed", "Cancelled"} {
		if _, err := f.svc.UpdateStatus(ctx, f.doctor.ID, a.ID, s); !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("terminal Completed -> %s must conflict, got %v", s, err)
		}
	}

	hist, err := f.svc.History(ctx, f.patientViewer(), a.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 || hist[2].To != lifecycle.AppointmentCompleted || hist[2].ChangedRole != "doctor" {
		t.Errorf("unexpected history %+v", hist)
	}
}

func TestUpdateStatus_UnknownStatusAndWrongDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	if _, err := f.svc.UpdateStatus(ctx, f.doctor.ID, a.ID, "Booked"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, uuid.New(), a.ID, "Confirmed"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestUpdateStatus_PublishesToPatient(t *testing.T) {
	f := newFixture(t)
	a := f.book(t)
	f.svc.UpdateStatus(context.Background(), f.doctor.ID, a.ID, "Confirmed")

	topics := f.events.topics()
	if topics[len(topics)-1] != websocket.PatientTopic(f.patient.String()) {
		t.Errorf("expected patient notification, got %v", topics)
	}
}

func TestCancel_OnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.book(t)
	got, err := f.svc.Cancel(ctx, f.patient, a.ID)
	if err != nil || got.Status != lifecycle.AppointmentCancelled {
		t.Fatalf("Cancel: %v, %v", got, err)
	}

	b := f.book(t)
	f.svc.UpdateStatus(ctx, f.doctor.ID, b.ID, "Confirmed")
	if _, err := f.svc.Cancel(ctx, f.patient, b.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("cancelling a Confirmed appointment must conflict, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, uuid.New(), b.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("another patient must be forbidden, got %v", err)
	}
}

func TestGet_AccessAndActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	v, err := f.svc.Get(ctx, f.doctorViewer(), a.ID)
	if err != nil {
		t.Fatalf("doctor Get: %v", err)
	}
	if len(v.Actions) != 2 {
		t.Errorf("doctor should see confirm+reject, got %v", v.Actions)
	}
	v, err = f.svc.Get(ctx, f.patientViewer(), a.ID)
	if err != nil || len(v.Actions) != 1 || v.Actions[0] != lifecycle.ActionCancel {
		t.Errorf("patient should see cancel, got %v, %v", v, err)
	}
	v, err = f.svc.Get(ctx, Viewer{ID: f.hospital, Role: auth.RoleHospital}, a.ID)
	if err != nil || len(v.Actions) != 0 {
		t.Errorf("hospital should read without actions, got %v, %v", v, err)
	}

	for _, other := range []Viewer{
		{ID: uuid.New(), Role: auth.RolePatient},
		{ID: uuid.New(), Role: auth.RoleDoctor},
		{ID: uuid.New(), Role: auth.RoleHospital},
		{ID: f.patient, Role: auth.RoleLab},
	} {
		if _, err := f.svc.Get(ctx, other, a.ID); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("%s %s should be forbidden, got %v", other.Role, other.ID, err)
		}
	}
}

func TestForDoctor_StatusFilterAndAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)
	f.book(t)
	f.svc.UpdateStatus(ctx, f.doctor.ID, a.ID, "Confirmed")

	all, err := f.svc.ForDoctor(ctx, f.doctorViewer(), f.doctor.ID, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2, got %d, %v", len(all), err)
	}
	confirmed, _ := f.svc.ForDoctor(ctx, Viewer{ID: f.hospital, Role: auth.RoleHospital}, f.doctor.ID, "confirmed")
	if len(confirmed) != 1 || confirmed[0].ID != a.ID {
		t.Errorf("unexpected filter result %v", confirmed)
	}

	if _, err := f.svc.ForDoctor(ctx, Viewer{ID: uuid.New(), Role: auth.RoleDoctor}, f.doctor.ID, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another doctor, got %v", err)
	}
	if _, err := f.svc.ForDoctor(ctx, Viewer{ID: uuid.New(), Role: auth.RoleHospital}, f.doctor.ID, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another hospital, got %v", err)
	}
	if _, err := f.svc.ForDoctor(ctx, f.doctorViewer(), f.doctor.ID, "later"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad filter, got %v", err)
	}
}
