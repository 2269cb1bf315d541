package lab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/domain/lifecycle"
	"github.com/medportal/portal/internal/platform/ai"
	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
	"github.com/medportal/portal/internal/platform/metrics"
	"github.com/medportal/portal/internal/platform/websocket"
)

const (
	DefaultTopBooked = 5
	MaxTopBooked     = 50
)

var (
	errBadCredentials = apperr.Unauthorized("invalid email or password")

	// ErrDraftFailed wraps every failure of the AI report draft.
	ErrDraftFailed = errors.New("report draft failed")
)

type Service struct {
	labs      LabRepository
	tests     TestRepository
	bookings  BookingRepository
	gen       ai.Generator
	aiTimeout time.Duration
	issuer    *auth.TokenIssuer
	events    websocket.EventPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

type Config struct {
	Generator ai.Generator
	AITimeout time.Duration
	Issuer    *auth.TokenIssuer
	Events    websocket.EventPublisher
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

func NewService(labs LabRepository, tests TestRepository, bookings BookingRepository, cfg Config) *Service {
	if cfg.Generator == nil {
		cfg.Generator = ai.Disabled{}
	}
	if cfg.Events == nil {
		cfg.Events = websocket.NopPublisher{}
	}
	return &Service{
		labs:      labs,
		tests:     tests,
		bookings:  bookings,
		gen:       cfg.Generator,
		aiTimeout: cfg.AITimeout,
		issuer:    cfg.Issuer,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("domain", "lab").Logger(),
	}
}

// -- Accounts --

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*LabAuth, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	l := &Lab{Email: req.Email, LabName: req.LabName, PasswordHash: hash}
	if err := s.labs.Create(ctx, l); err != nil {
		return nil, err
	}
	s.logger.Info().Str("lab_id", l.ID.String()).Msg("lab registered")
	return s.issue(l)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LabAuth, error) {
	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	l, err := s.labs.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	ok := err == nil && auth.CheckPassword(l.PasswordHash, req.Password)
	s.metrics.RecordAuthAttempt(string(auth.RoleLab), ok)
	if !ok {
		return nil, errBadCredentials
	}
	return s.issue(l)
}

func (s *Service) issue(l *Lab) (*LabAuth, error) {
	token, _, err := s.issuer.Issue(l.ID.String(), auth.RoleLab)
	if err != nil {
		return nil, err
	}
	return &LabAuth{Lab: l, Token: token}, nil
}

// -- Catalog --

func (s *Service) CreateTest(ctx context.Context, labID uuid.UUID, req NewTest) (*Test, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t := &Test{
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Price:           req.Price,
		TurnaroundHours: req.TurnaroundHours,
		CreatedBy:       &labID,
	}
	if err := s.tests.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListTests(ctx context.Context) ([]*Test, error) {
	list, err := s.tests.List(ctx)
	if list == nil && err == nil {
		list = []*Test{}
	}
	return list, err
}

// TopBooked clamps limit to [1, MaxTopBooked], using DefaultTopBooked for 0.
func (s *Service) TopBooked(ctx context.Context, limit int) ([]*Test, error) {
	if limit <= 0 {
		limit = DefaultTopBooked
	}
	if limit > MaxTopBooked {
		limit = MaxTopBooked
	}
	list, err := s.tests.TopBooked(ctx, limit)
	if list == nil && err == nil {
		list = []*Test{}
	}
	return list, err
}

func (s *Service) GetTest(ctx context.Context, id uuid.UUID) (*Test, error) {
	return s.tests.GetByID(ctx, id)
}

// -- Patient bookings --

func (s *Service) Book(ctx context.Context, patientID, testID uuid.UUID, req BookRequest) (*Booking, error) {
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if d := strings.TrimSpace(req.BookingDate); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, apperr.Validation("bookingDate must be YYYY-MM-DD")
		}
		date = parsed
	}
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	b := &Booking{
		PatientID:   patientID,
		TestID:      t.ID,
		TestName:    t.Name,
		Status:      lifecycle.TestPending,
		BookingDate: date,
		Notes:       strings.TrimSpace(req.Notes),
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", b.ID.String()).Str("test", t.Name).Msg("test booked")
	s.publish(ctx, "booking.created", websocket.TopicLabsPending, b)
	return b, nil
}

// BookedTests lists a patient's own bookings, each with its report if any.
func (s *Service) BookedTests(ctx context.Context, callerID, patientID uuid.UUID) ([]*BookingDetails, error) {
	if callerID != patientID {
		return nil, apperr.Forbidden("you can only view your own tests")
	}
	list, err := s.bookings.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]*BookingDetails, 0, len(list))
	for _, b := range list {
		d, err := s.withReport(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) withReport(ctx context.Context, b *Booking) (*BookingDetails, error) {
	d := &BookingDetails{Booking: b}
	if !b.ReportGenerated {
		return d, nil
	}
	rep, err := s.bookings.GetReport(ctx, b.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	d.Report = rep
	return d, nil
}

// -- Lab queue --

func requireSelf(labID, pathLabID uuid.UUID) error {
	if labID != pathLabID {
		return apperr.Forbidden("you can only view your own lab's bookings")
	}
	return nil
}

func withActions(list []*Booking) []*Booking {
	if list == nil {
		return []*Booking{}
	}
	for _, b := range list {
		b.Actions = lifecycle.TestActions(b.Status, b.ReportGenerated)
	}
	return list
}

func (s *Service) PendingBookings(ctx context.Context, labID, pathLabID uuid.UUID) ([]*Booking, error) {
	if err := requireSelf(labID, pathLabID); err != nil {
		return nil, err
	}
	list, err := s.bookings.ListPending(ctx, labID)
	if err != nil {
		return nil, err
	}
	return withActions(list), nil
}

func (s *Service) LabTests(ctx context.Context, labID, pathLabID uuid.UUID) ([]*Booking, error) {
	if err := requireSelf(labID, pathLabID); err != nil {
		return nil, err
	}
	list, err := s.bookings.ListForLab(ctx, labID)
	if err != nil {
		return nil, err
	}
	return withActions(list), nil
}

// Respond applies a lab's accept or reject. The request is validated before
// anything is read from the store.
func (s *Service) Respond(ctx context.Context, labID, bookingID uuid.UUID, req BookingResponse) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if _, rejected, err := s.bookings.Rejection(ctx, bookingID, labID); err != nil {
		return nil, err
	} else if rejected {
		return nil, apperr.Conflict("your lab already rejected this booking")
	}
	if b.Status != lifecycle.TestPending {
		return nil, apperr.Conflict("booking is no longer pending")
	}

	if req.Action == ResponseReject {
		return s.reject(ctx, labID, b, req.Reason)
	}

	claimed, err := s.bookings.Claim(ctx, bookingID, labID, req.LabName, req.Doctor)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("test_booking", string(lifecycle.TestPending), string(lifecycle.TestStarted))
	s.logger.Info().
		Str("booking_id", bookingID.String()).
		Str("lab_id", labID.String()).
		Str("doctor", req.Doctor).
		Msg("booking accepted")
	s.publish(ctx, "booking.accepted", websocket.PatientTopic(claimed.PatientID.String()), claimed)
	s.publish(ctx, "booking.claimed", websocket.TopicLabsPending, claimed)
	claimed.Actions = lifecycle.TestActions(claimed.Status, claimed.ReportGenerated)
	return claimed, nil
}

// reject records labID's rejection. The booking stays pending for every other
// lab, and is reported back as rejected from this lab's point of view.
func (s *Service) reject(ctx context.Context, labID uuid.UUID, b *Booking, reason string) (*Booking, error) {
	if err := s.bookings.Reject(ctx, b.ID, labID, reason); err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("test_booking", string(lifecycle.TestPending), string(lifecycle.TestRejected))
	s.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("lab_id", labID.String()).
		Str("reason", reason).
		Msg("booking rejected by lab")
	s.publish(ctx, "booking.rejected", websocket.TopicLabsPending, b)

	view := *b
	view.Status = lifecycle.TestRejected
	view.RejectionReason = reason
	view.Actions = nil
	return &view, nil
}

// ownedBooking loads a booking and checks labID accepted it.
func (s *Service) ownedBooking(ctx context.Context, labID, bookingID uuid.UUID) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(labID) {
		return nil, apperr.Forbidden("booking belongs to another lab")
	}
	return b, nil
}

// UpdateTest edits an accepted booking. Completion is only reachable through
// GenerateReport.
func (s *Service) UpdateTest(ctx context.Context, labID, bookingID uuid.UUID, upd TestUpdate) (*Booking, error) {
	b, err := s.ownedBooking(ctx, labID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ReportGenerated {
		return nil, apperr.Conflict("report already generated, the test can no longer be edited")
	}
	if upd.Doctor != nil {
		d := strings.TrimSpace(*upd.Doctor)
		if d == "" {
			return nil, apperr.Validation("doctor cannot be empty")
		}
		b.Doctor = d
	}
	if upd.LabName != nil {
		n := strings.TrimSpace(*upd.LabName)
		if n == "" {
			return nil, apperr.Validation("labName cannot be empty")
		}
		b.LabName = n
	}
	if upd.Notes != nil {
		b.Notes = strings.TrimSpace(*upd.Notes)
	}
	from := b.Status
	if upd.Status != nil {
		to, err := lifecycle.ParseTestStatus(*upd.Status)
		if err != nil {
			return nil, apperr.Validation("invalid status %q", *upd.Status)
		}
		if to == lifecycle.TestCompleted {
			return nil, apperr.Conflict("generate the report to complete a test")
		}
		if to != b.Status {
			if err := lifecycle.ValidateTestTransition(b.Status, to); err != nil {
				return nil, apperr.Wrap(apperr.ErrConflict, err, "cannot change status from "+string(b.Status)+" to "+string(to))
			}
			b.Status = to
		}
	}
	if err := s.bookings.Update(ctx, b, from); err != nil {
		return nil, err
	}
	if b.Status != from {
		s.metrics.RecordTransition("test_booking", string(from), string(b.Status))
		s.publish(ctx, "booking.status", websocket.PatientTopic(b.PatientID.String()), b)
	}
	b.Actions = lifecycle.TestActions(b.Status, b.ReportGenerated)
	return b, nil
}

// TestDetails is readable by the owning lab and the booking's patient.
func (s *Service) TestDetails(ctx context.Context, callerID uuid.UUID, role auth.Role, bookingID uuid.UUID) (*BookingDetails, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch {
	case role == auth.RoleLab && b.OwnedBy(callerID):
		b.Actions = lifecycle.TestActions(b.Status, b.ReportGenerated)
	case role == auth.RolePatient && b.PatientID == callerID:
	default:
		return nil, apperr.Forbidden("not allowed to view this test")
	}
	return s.withReport(ctx, b)
}

// -- Reports --

func draftPrompt(b *Booking, instructions string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are assisting a diagnostic laboratory with a report for the test %q.\n", b.TestName)
	if b.Notes != "" {
		fmt.Fprintf(&sb, "Booking notes: %s\n", b.Notes)
	}
	fmt.Fprintf(&sb, "Lab instructions: %s\n", instructions)
	sb.WriteString(`Respond with JSON only, no prose, in this shape:
{"parameters":[{"name":"","value":"","unit":"","range":"","status":"normal|high|low"}],"diagnosis":"","recommendations":"","technicalNotes":""}`)
	return sb.String()
}

func (s *Service) draft(ctx context.Context, b *Booking, prompt string) (*Draft, error) {
	if s.aiTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.aiTimeout)
		defer cancel()
	}
	text, err := s.gen.Generate(ctx, draftPrompt(b, prompt))
	if err != nil {
		s.metrics.RecordAIRequest("report_draft", false)
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}
	var d Draft
	if err := ai.DecodeJSON(text, &d); err != nil {
		s.metrics.RecordAIRequest("report_draft", false)
		s.logger.Warn().Str("booking_id", b.ID.String()).Msg("AI draft was not valid JSON")
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}
	s.metrics.RecordAIRequest("report_draft", true)
	return &d, nil
}

func requireStarted(b *Booking) error {
	if b.ReportGenerated {
		return apperr.Conflict("report already generated")
	}
	if b.Status != lifecycle.TestStarted {
		return apperr.Conflict("test must be started, it is %s", b.Status)
	}
	return nil
}

// AIDraft returns a report draft for an accepted booking without saving it.
func (s *Service) AIDraft(ctx context.Context, labID, bookingID uuid.UUID, prompt string) (*Draft, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperr.Validation("prompt is required")
	}
	b, err := s.ownedBooking(ctx, labID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireStarted(b); err != nil {
		return nil, err
	}
	return s.draft(ctx, b, prompt)
}

// GenerateReport stores the report and completes the booking. Fields given in
// req take precedence over an AI draft.
func (s *Service) GenerateReport(ctx context.Context, labID, bookingID uuid.UUID, req ReportRequest) (*BookingDetails, error) {
	b, err := s.ownedBooking(ctx, labID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireStarted(b); err != nil {
		return nil, err
	}

	rep := &Report{
		BookingID:       b.ID,
		Parameters:      req.Parameters,
		Diagnosis:       strings.TrimSpace(req.Diagnosis),
		Recommendations: strings.TrimSpace(req.Recommendations),
		TechnicalNotes:  strings.TrimSpace(req.TechnicalNotes),
		AuthorizedBy:    strings.TrimSpace(req.AuthorizedBy),
	}
	if req.UseAI {
		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			return nil, apperr.Validation("prompt is required when useAI is set")
		}
		d, err := s.draft(ctx, b, prompt)
		if err != nil {
			return nil, err
		}
		rep.AIAssisted = true
		if len(rep.Parameters) == 0 {
			rep.Parameters = d.Parameters
		}
		if rep.Diagnosis == "" {
			rep.Diagnosis = strings.TrimSpace(d.Diagnosis)
		}
		if rep.Recommendations == "" {
			rep.Recommendations = strings.TrimSpace(d.Recommendations)
		}
		if rep.TechnicalNotes == "" {
			rep.TechnicalNotes = strings.TrimSpace(d.TechnicalNotes)
		}
	}
	if rep.Diagnosis == "" && len(rep.Parameters) == 0 {
		return nil, apperr.Validation("a report needs a diagnosis or at least one parameter")
	}
	for i, p := range rep.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return nil, apperr.Validation("parameter %d has no name", i+1)
		}
	}
	if rep.AuthorizedBy == "" {
		rep.AuthorizedBy = b.Doctor
	}

	done, err := s.bookings.SaveReport(ctx, labID, rep)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("test_booking", string(lifecycle.TestStarted), string(lifecycle.TestCompleted))
	s.logger.Info().
		Str("booking_id", b.ID.String()).
		Bool("ai_assisted", rep.AIAssisted).
		Msg("report generated")
	s.publish(ctx, "booking.completed", websocket.PatientTopic(done.PatientID.String()), done)
	done.Actions = lifecycle.TestActions(done.Status, done.ReportGenerated)
	return &BookingDetails{Booking: done, Report: rep}, nil
}

// -- Settings --

func (s *Service) settings(ctx context.Context, labID uuid.UUID) (*Settings, error) {
	st, err := s.labs.GetSettings(ctx, labID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &Settings{ServicesOffered: []string{}}, nil
	}
	return st, err
}

func (s *Service) GetProfile(ctx context.Context, labID uuid.UUID) (*ProfileSettings, error) {
	l, err := s.labs.GetByID(ctx, labID)
	if err != nil {
		return nil, err
	}
	st, err := s.settings(ctx, labID)
	if err != nil {
		return nil, err
	}
	email := st.ContactEmail
	if email == "" {
		email = l.Email
	}
	return &ProfileSettings{ContactName: st.ContactName, Email: email, Phone: st.Phone}, nil
}

func (s *Service) UpdateProfile(ctx context.Context, labID uuid.UUID, p ProfileSettings) (*ProfileSettings, error) {
	p.ContactName = strings.TrimSpace(p.ContactName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = auth.NormalizeEmail(p.Email)
	if p.Email != "" {
		if err := auth.ValidateEmail(p.Email); err != nil {
			return nil, err
		}
	}
	st, err := s.settings(ctx, labID)
	if err != nil {
		return nil, err
	}
	st.ContactName, st.ContactEmail, st.Phone = p.ContactName, p.Email, p.Phone
	if err := s.labs.UpsertSettings(ctx, labID, st); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, labID)
}

func (s *Service) GetLabInfo(ctx context.Context, labID uuid.UUID) (*LabInfo, error) {
	l, err := s.labs.GetByID(ctx, labID)
	if err != nil {
		return nil, err
	}
	st, err := s.settings(ctx, labID)
	if err != nil {
		return nil, err
	}
	services := st.ServicesOffered
	if services == nil {
		services = []string{}
	}
	return &LabInfo{
		LabName:         l.LabName,
		Address:         st.Address,
		Accreditation:   st.Accreditation,
		OperatingHours:  st.OperatingHours,
		ServicesOffered: services,
	}, nil
}

func (s *Service) UpdateLabInfo(ctx context.Context, labID uuid.UUID, info LabInfo) (*LabInfo, error) {
	info.LabName = strings.TrimSpace(info.LabName)
	if info.LabName != "" {
		if err := s.labs.UpdateName(ctx, labID, info.LabName); err != nil {
			return nil, err
		}
	}
	st, err := s.settings(ctx, labID)
	if err != nil {
		return nil, err
	}
	st.Address = strings.TrimSpace(info.Address)
	st.Accreditation = strings.TrimSpace(info.Accreditation)
	st.OperatingHours = strings.TrimSpace(info.OperatingHours)
	services := make([]string, 0, len(info.ServicesOffered))
	for _, svc := range info.ServicesOffered {
		if svc = strings.TrimSpace(svc); svc != "" {
			services = append(services, svc)
		}
	}
	st.ServicesOffered = services
	if err := s.labs.UpsertSettings(ctx, labID, st); err != nil {
		return nil, err
	}
	return s.GetLabInfo(ctx, labID)
}

func (s *Service) publish(ctx context.Context, eventType, topic string, b *Booking) {
	ev := websocket.NewEvent(eventType, topic, "test_booking", b.ID.String(), b)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("publish booking event")
	}
}
