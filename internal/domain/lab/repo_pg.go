package lab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medportal/portal/internal/domain/lifecycle"
	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/db"
)

// =========== Lab Repository ===========

type LabRepoPG struct{ pool *pgxpool.Pool }

func NewLabRepoPG(pool *pgxpool.Pool) *LabRepoPG { return &LabRepoPG{pool: pool} }

func (r *LabRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const labCols = `id, email, lab_name, password_hash, created_at`

func scanLab(row pgx.Row) (*Lab, error) {
	var l Lab
	err := row.Scan(&l.ID, &l.Email, &l.LabName, &l.PasswordHash, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lab not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan lab: %w", err)
	}
	return &l, nil
}

func (r *LabRepoPG) Create(ctx context.Context, l *Lab) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO labs (id, email, lab_name, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.Email, l.LabName, l.PasswordHash, l.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert lab: %w", err)
	}
	return nil
}

func (r *LabRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Lab, error) {
	return scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM labs WHERE id = $1`, id))
}

func (r *LabRepoPG) GetByEmail(ctx context.Context, email string) (*Lab, error) {
	return scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM labs WHERE email = $1`, email))
}

func (r *LabRepoPG) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE labs SET lab_name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("update lab name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lab not found")
	}
	return nil
}

func (r *LabRepoPG) GetSettings(ctx context.Context, labID uuid.UUID) (*Settings, error) {
	var s Settings
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT contact_name, contact_email, phone, address, accreditation,
			operating_hours, services_offered, updated_at
		FROM lab_settings WHERE lab_id = $1`, labID).
		Scan(&s.ContactName, &s.ContactEmail, &s.Phone, &s.Address, &s.Accreditation,
			&s.OperatingHours, &s.ServicesOffered, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("settings not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get lab settings: %w", err)
	}
	return &s, nil
}

func (r *LabRepoPG) UpsertSettings(ctx context.Context, labID uuid.UUID, s *Settings) error {
	s.UpdatedAt = time.Now().UTC()
	if s.ServicesOffered == nil {
		s.ServicesOffered = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_settings (lab_id, contact_name, contact_email, phone, address,
			accreditation, operating_hours, services_offered, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (lab_id) DO UPDATE SET
			contact_name = EXCLUDED.contact_name,
			contact_email = EXCLUDED.contact_email,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			accreditation = EXCLUDED.accreditation,
			operating_hours = EXCLUDED.operating_hours,
			services_offered = EXCLUDED.services_offered,
			updated_at = EXCLUDED.updated_at`,
		labID, s.ContactName, s.ContactEmail, s.Phone, s.Address,
		s.Accreditation, s.OperatingHours, s.ServicesOffered, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert lab settings: %w", err)
	}
	return nil
}

// =========== Test Repository ===========

type TestRepoPG struct{ pool *pgxpool.Pool }

func NewTestRepoPG(pool *pgxpool.Pool) *TestRepoPG { return &TestRepoPG{pool: pool} }

func (r *TestRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const testCols = `id, name, description, category, price, turnaround_hours, booked_count, created_by, created_at`

func scanTest(row pgx.Row) (*Test, error) {
	var t Test
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.Price,
		&t.TurnaroundHours, &t.BookedCount, &t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("test not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan test: %w", err)
	}
	return &t, nil
}

func (r *TestRepoPG) Create(ctx context.Context, t *Test) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tests (id, name, description, category, price, turnaround_hours, booked_count, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8)`,
		t.ID, t.Name, t.Description, t.Category, t.Price, t.TurnaroundHours, t.CreatedBy, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	return nil
}

func (r *TestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Test, error) {
	return scanTest(r.conn(ctx).QueryRow(ctx, `SELECT `+testCols+` FROM tests WHERE id = $1`, id))
}

func (r *TestRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Test, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()
	var out []*Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TestRepoPG) List(ctx context.Context) ([]*Test, error) {
	return r.list(ctx, `SELECT `+testCols+` FROM tests ORDER BY category, name`)
}

func (r *TestRepoPG) TopBooked(ctx context.Context, limit int) ([]*Test, error) {
	return r.list(ctx, `SELECT `+testCols+` FROM tests ORDER BY booked_count DESC, name LIMIT $1`, limit)
}

// =========== Booking Repository ===========

type BookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) *BookingRepoPG { return &BookingRepoPG{pool: pool} }

func (r *BookingRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

// bookingSelect ends in the FROM clause so callers append WHERE/ORDER BY.
const bookingSelect = `SELECT b.id, b.patient_id, b.test_id, t.name, b.lab_id, b.lab_name, b.doctor,
	b.status, b.report_generated, b.booking_date, b.notes, '' AS reason, b.created_at, b.updated_at
	FROM test_bookings b JOIN tests t ON t.id = b.test_id`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.PatientID, &b.TestID, &b.TestName, &b.LabID, &b.LabName, &b.Doctor,
		&b.Status, &b.ReportGenerated, &b.BookingDate, &b.Notes, &b.RejectionReason, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("booking not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return &b, nil
}

func (r *BookingRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO test_bookings (id, patient_id, test_id, status, booking_date, notes, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			b.ID, b.PatientID, b.TestID, b.Status, b.BookingDate, b.Notes, b.CreatedAt, b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		_, err = r.conn(ctx).Exec(ctx, `UPDATE tests SET booked_count = booked_count + 1 WHERE id = $1`, b.TestID)
		if err != nil {
			return fmt.Errorf("increment booked count: %w", err)
		}
		return nil
	})
}

func (r *BookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx, bookingSelect+` WHERE b.id = $1`, id))
}

func (r *BookingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Booking, error) {
	return r.list(ctx, bookingSelect+` WHERE b.patient_id = $1 ORDER BY b.created_at DESC`, patientID)
}

func (r *BookingRepoPG) ListPending(ctx context.Context, labID uuid.UUID) ([]*Booking, error) {
	return r.list(ctx, bookingSelect+`
		WHERE b.status = 'pending'
		  AND NOT EXISTS (SELECT 1 FROM test_booking_rejections x WHERE x.booking_id = b.id AND x.lab_id = $1)
		ORDER BY b.created_at`, labID)
}

func (r *BookingRepoPG) ListForLab(ctx context.Context, labID uuid.UUID) ([]*Booking, error) {
	return r.list(ctx, `
		SELECT * FROM (
			`+bookingSelect+` WHERE b.lab_id = $1
			UNION ALL
			SELECT b.id, b.patient_id, b.test_id, t.name, NULL::uuid, '', '',
				'rejected', b.report_generated, b.booking_date, b.notes, x.reason, b.created_at, x.rejected_at
			FROM test_booking_rejections x
			JOIN test_bookings b ON b.id = x.booking_id
			JOIN tests t ON t.id = b.test_id
			WHERE x.lab_id = $1
		) work
		ORDER BY updated_at DESC`, labID)
}

func (r *BookingRepoPG) Claim(ctx context.Context, bookingID, labID uuid.UUID, labName, doctor string) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `
		WITH claimed AS (
			UPDATE test_bookings SET status = $2, lab_id = $3, lab_name = $4, doctor = $5, updated_at = NOW()
			WHERE id = $1 AND status = $6
			RETURNING *
		)
		SELECT b.id, b.patient_id, b.test_id, t.name, b.lab_id, b.lab_name, b.doctor,
			b.status, b.report_generated, b.booking_date, b.notes, '', b.created_at, b.updated_at
		FROM claimed b JOIN tests t ON t.id = b.test_id`,
		bookingID, lifecycle.TestStarted, labID, labName, doctor, lifecycle.TestPending))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Conflict("booking is no longer pending")
	}
	return b, err
}

func (r *BookingRepoPG) Reject(ctx context.Context, bookingID, labID uuid.UUID, reason string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO test_booking_rejections (booking_id, lab_id, reason, rejected_at)
		VALUES ($1,$2,$3,NOW())
		ON CONFLICT (booking_id, lab_id) DO NOTHING`, bookingID, labID, reason)
	if err != nil {
		return fmt.Errorf("reject booking: %w", err)
	}
	return nil
}

func (r *BookingRepoPG) Rejection(ctx context.Context, bookingID, labID uuid.UUID) (string, bool, error) {
	var reason string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT reason FROM test_booking_rejections WHERE booking_id = $1 AND lab_id = $2`,
		bookingID, labID).Scan(&reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get rejection: %w", err)
	}
	return reason, true, nil
}

func (r *BookingRepoPG) Update(ctx context.Context, b *Booking, from lifecycle.TestStatus) error {
	b.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE test_bookings SET doctor = $2, lab_name = $3, notes = $4, status = $5, updated_at = $6
		WHERE id = $1 AND status = $7 AND NOT report_generated`,
		b.ID, b.Doctor, b.LabName, b.Notes, b.Status, b.UpdatedAt, from)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("booking changed or its report was already generated")
	}
	return nil
}

func (r *BookingRepoPG) GetReport(ctx context.Context, bookingID uuid.UUID) (*Report, error) {
	var rep Report
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT booking_id, parameters, diagnosis, recommendations, technical_notes,
			authorized_by, ai_assisted, generated_at
		FROM reports WHERE booking_id = $1`, bookingID).
		Scan(&rep.BookingID, &rep.Parameters, &rep.Diagnosis, &rep.Recommendations, &rep.TechnicalNotes,
			&rep.AuthorizedBy, &rep.AIAssisted, &rep.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("report not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &rep, nil
}

func (r *BookingRepoPG) SaveReport(ctx context.Context, labID uuid.UUID, rep *Report) (*Booking, error) {
	var out *Booking
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE test_bookings SET status = $3, report_generated = TRUE, updated_at = NOW()
			WHERE id = $1 AND lab_id = $2 AND status = $4 AND NOT report_generated`,
			rep.BookingID, labID, lifecycle.TestCompleted, lifecycle.TestStarted)
		if err != nil {
			return fmt.Errorf("complete booking: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Conflict("report already generated or booking not started")
		}

		rep.GeneratedAt = time.Now().UTC()
		if rep.Parameters == nil {
			rep.Parameters = []Parameter{}
		}
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO reports (booking_id, parameters, diagnosis, recommendations, technical_notes,
				authorized_by, ai_assisted, generated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			rep.BookingID, rep.Parameters, rep.Diagnosis, rep.Recommendations, rep.TechnicalNotes,
			rep.AuthorizedBy, rep.AIAssisted, rep.GeneratedAt)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}

		out, err = r.GetByID(ctx, rep.BookingID)
		return err
	})
	return out, err
}
