package hospital

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/db"
)

// =========== Hospital Repository ===========

type HospitalRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalRepoPG(pool *pgxpool.Pool) *HospitalRepoPG { return &HospitalRepoPG{pool: pool} }

func (r *HospitalRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const hospitalCols = `id, name, email, phone, address, city, registration_number,
	password_hash, created_at, updated_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Email, &h.Phone, &h.Address, &h.City,
		&h.RegistrationNumber, &h.PasswordHash, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("hospital not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan hospital: %w", err)
	}
	return &h, nil
}

func (r *HospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	h.ID = uuid.New()
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospitals (id, name, email, phone, address, city, registration_number,
			password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		h.ID, h.Name, h.Email, h.Phone, h.Address, h.City, h.RegistrationNumber,
		h.PasswordHash, h.CreatedAt, h.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert hospital: %w", err)
	}
	return nil
}

func (r *HospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return scanHospital(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospitals WHERE id = $1`, id))
}

func (r *HospitalRepoPG) GetByEmail(ctx context.Context, email string) (*Hospital, error) {
	return scanHospital(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospitals WHERE email = $1`, email))
}

func (r *HospitalRepoPG) Update(ctx context.Context, h *Hospital) error {
	h.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospitals SET name=$2, phone=$3, address=$4, city=$5, registration_number=$6, updated_at=$7
		WHERE id = $1`,
		h.ID, h.Name, h.Phone, h.Address, h.City, h.RegistrationNumber, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update hospital: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("hospital not found")
	}
	return nil
}

func (r *HospitalRepoPG) GetSettings(ctx context.Context, hospitalID uuid.UUID) (*Settings, error) {
	var s Settings
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT notification_email, working_hours, emergency_contact, departments, updated_at
		FROM hospital_settings WHERE hospital_id = $1`, hospitalID).
		Scan(&s.NotificationEmail, &s.WorkingHours, &s.EmergencyContact, &s.Departments, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("settings not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get hospital settings: %w", err)
	}
	return &s, nil
}

func (r *HospitalRepoPG) UpsertSettings(ctx context.Context, hospitalID uuid.UUID, s *Settings) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospital_settings (hospital_id, notification_email, working_hours,
			emergency_contact, departments, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (hospital_id) DO UPDATE SET
			notification_email = EXCLUDED.notification_email,
			working_hours = EXCLUDED.working_hours,
			emergency_contact = EXCLUDED.emergency_contact,
			departments = EXCLUDED.departments,
			updated_at = EXCLUDED.updated_at`,
		hospitalID, s.NotificationEmail, s.WorkingHours, s.EmergencyContact, s.Departments, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert hospital settings: %w", err)
	}
	return nil
}

func (r *HospitalRepoPG) ListPatients(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(DISTINCT a.patient_id)
		FROM appointments a JOIN doctors d ON d.id = a.doctor_id
		WHERE d.hospital_id = $1`, hospitalID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count hospital patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.id, p.name, p.email, MAX(a.patient_contact), COUNT(a.id), MAX(a.appointment_date)
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE d.hospital_id = $1
		GROUP BY p.id, p.name, p.email
		ORDER BY MAX(a.appointment_date) DESC, p.name
		LIMIT $2 OFFSET $3`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list hospital patients: %w", err)
	}
	defer rows.Close()

	var out []*PatientSummary
	for rows.Next() {
		var p PatientSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Contact, &p.Appointments, &p.LastAppointment); err != nil {
			return nil, 0, err
		}
		out = append(out, &p)
	}
	return out, total, rows.Err()
}

func (r *HospitalRepoPG) Billing(ctx context.Context, hospitalID uuid.UUID) ([]DoctorBilling, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.name, COUNT(a.id), COALESCE(SUM(a.consultation_fee), 0)
		FROM doctors d
		LEFT JOIN appointments a ON a.doctor_id = d.id AND a.status = 'Completed'
		WHERE d.hospital_id = $1
		GROUP BY d.id, d.name
		ORDER BY d.name`, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("hospital billing: %w", err)
	}
	defer rows.Close()

	var out []DoctorBilling
	for rows.Next() {
		var b DoctorBilling
		if err := rows.Scan(&b.DoctorID, &b.DoctorName, &b.CompletedAppointments, &b.Total); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// =========== Doctor Repository ===========

type DoctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) *DoctorRepoPG { return &DoctorRepoPG{pool: pool} }

func (r *DoctorRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, hospital_id, name, email, specialization, consultation_fee,
	available_slots, contact, experience, password_hash, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.HospitalID, &d.Name, &d.Email, &d.Specialization, &d.ConsultationFee,
		&d.AvailableSlots, &d.Contact, &d.Experience, &d.PasswordHash, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan doctor: %w", err)
	}
	return &d, nil
}

func (r *DoctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now().UTC()
	if d.AvailableSlots == nil {
		d.AvailableSlots = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (id, hospital_id, name, email, specialization, consultation_fee,
			available_slots, contact, experience, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		d.ID, d.HospitalID, d.Name, d.Email, d.Specialization, d.ConsultationFee,
		d.AvailableSlots, d.Contact, d.Experience, d.PasswordHash, d.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("doctor email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *DoctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *DoctorRepoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE email = $1`, email))
}

func (r *DoctorRepoPG) collect(rows pgx.Rows) ([]*Doctor, error) {
	defer rows.Close()
	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DoctorRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors WHERE hospital_id = $1 ORDER BY name`, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return r.collect(rows)
}

func (r *DoctorRepoPG) List(ctx context.Context, specialization string, limit, offset int) ([]*Doctor, int, error) {
	where := ""
	args := []interface{}{}
	if s := strings.TrimSpace(specialization); s != "" {
		where = ` WHERE LOWER(specialization) = LOWER($1)`
		args = append(args, s)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+doctorCols+` FROM doctors`+where+` ORDER BY name LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *DoctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}
