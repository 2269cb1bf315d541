package hospital

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
	"github.com/medportal/portal/internal/platform/metrics"
)

var errBadCredentials = apperr.Unauthorized("invalid email or password")

type Service struct {
	hospitals HospitalRepository
	doctors   DoctorRepository
	issuer    *auth.TokenIssuer
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewService(hospitals HospitalRepository, doctors DoctorRepository, issuer *auth.TokenIssuer, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		hospitals: hospitals,
		doctors:   doctors,
		issuer:    issuer,
		metrics:   m,
		logger:    logger.With().Str("domain", "hospital").Logger(),
	}
}

// -- Hospital accounts --

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*HospitalAuth, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	h := &Hospital{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              strings.TrimSpace(req.Phone),
		Address:            strings.TrimSpace(req.Address),
		City:               strings.TrimSpace(req.City),
		RegistrationNumber: strings.TrimSpace(req.RegistrationNumber),
		PasswordHash:       hash,
	}
	if err := s.hospitals.Create(ctx, h); err != nil {
		return nil, err
	}
	s.logger.Info().Str("hospital_id", h.ID.String()).Msg("hospital registered")
	token, _, err := s.issuer.Issue(h.ID.String(), auth.RoleHospital)
	if err != nil {
		return nil, err
	}
	return &HospitalAuth{Hospital: h, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*HospitalAuth, error) {
	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	h, err := s.hospitals.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	ok := err == nil && auth.CheckPassword(h.PasswordHash, req.Password)
	s.metrics.RecordAuthAttempt(string(auth.RoleHospital), ok)
	if !ok {
		return nil, errBadCredentials
	}
	token, _, err := s.issuer.Issue(h.ID.String(), auth.RoleHospital)
	if err != nil {
		return nil, err
	}
	return &HospitalAuth{Hospital: h, Token: token}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.hospitals.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*Hospital, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := upd.apply(h); err != nil {
		return nil, err
	}
	if err := s.hospitals.Update(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// GetSettings returns empty settings for a hospital that never saved any.
func (s *Service) GetSettings(ctx context.Context, id uuid.UUID) (*Settings, error) {
	st, err := s.hospitals.GetSettings(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return &Settings{Departments: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if st.Departments == nil {
		st.Departments = []string{}
	}
	return st, nil
}

func (s *Service) UpdateSettings(ctx context.Context, id uuid.UUID, st Settings) (*Settings, error) {
	st.NotificationEmail = auth.NormalizeEmail(st.NotificationEmail)
	if st.NotificationEmail != "" {
		if err := auth.ValidateEmail(st.NotificationEmail); err != nil {
			return nil, err
		}
	}
	depts := make([]string, 0, len(st.Departments))
	for _, d := range st.Departments {
		if d = strings.TrimSpace(d); d != "" {
			depts = append(depts, d)
		}
	}
	st.Departments = depts
	if err := s.hospitals.UpsertSettings(ctx, id, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// -- Doctors --

func (s *Service) AddDoctor(ctx context.Context, hospitalID uuid.UUID, req NewDoctor) (*Doctor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	d := &Doctor{
		HospitalID:      hospitalID,
		Name:            req.Name,
		Email:           req.Email,
		Specialization:  req.Specialization,
		ConsultationFee: req.ConsultationFee,
		AvailableSlots:  req.AvailableSlots,
		Contact:         strings.TrimSpace(req.Contact),
		Experience:      req.Experience,
		PasswordHash:    hash,
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("hospital_id", hospitalID.String()).Str("doctor_id", d.ID.String()).Msg("doctor added")
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, hospitalID uuid.UUID) ([]*Doctor, error) {
	docs, err := s.doctors.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*Doctor{}
	}
	return docs, nil
}

// DeleteDoctor removes a doctor owned by hospitalID. Another hospital's doctor
// is reported as not found.
func (s *Service) DeleteDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) error {
	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return err
	}
	if d.HospitalID != hospitalID {
		return apperr.NotFound("doctor not found")
	}
	if err := s.doctors.Delete(ctx, doctorID); err != nil {
		return err
	}
	s.logger.Info().Str("hospital_id", hospitalID.String()).Str("doctor_id", doctorID.String()).Msg("doctor removed")
	return nil
}

func (s *Service) Patients(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error) {
	return s.hospitals.ListPatients(ctx, hospitalID, limit, offset)
}

func (s *Service) Billing(ctx context.Context, hospitalID uuid.UUID) (*BillingSummary, error) {
	rows, err := s.hospitals.Billing(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	return newBillingSummary(rows), nil
}

func (s *Service) DoctorLogin(ctx context.Context, req LoginRequest) (*DoctorAuth, error) {
	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	d, err := s.doctors.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	ok := err == nil && auth.CheckPassword(d.PasswordHash, req.Password)
	s.metrics.RecordAuthAttempt(string(auth.RoleDoctor), ok)
	if !ok {
		return nil, errBadCredentials
	}
	token, _, err := s.issuer.Issue(d.ID.String(), auth.RoleDoctor)
	if err != nil {
		return nil, err
	}
	return &DoctorAuth{Doctor: d, Token: token}, nil
}

// GetDoctor is also the lookup used by appointment booking.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctorsPublic(ctx context.Context, specialization string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, specialization, limit, offset)
}
