package scheduling

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

type AppointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) *AppointmentRepoPG {
	return &AppointmentRepoPG{pool: pool}
}

func (r *AppointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, doctor_id, patient_id, patient_name, patient_contact, patient_email,
	appointment_date, time_slot, consultation_fee, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.PatientName, &a.PatientContact, &a.PatientEmail,
		&a.AppointmentDate, &a.TimeSlot, &a.ConsultationFee, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	return &a, nil
}

func (r *AppointmentRepoPG) insertHistory(ctx context.Context, c *StatusChange) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment_status_history (appointment_id, from_status, to_status, changed_by, changed_role, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.AppointmentID, c.From, c.To, c.ChangedBy, c.ChangedRole, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert appointment history: %w", err)
	}
	return nil
}

func (r *AppointmentRepoPG) Create(ctx context.Context, a *Appointment, booked *StatusChange) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO appointments (id, doctor_id, patient_id, patient_name, patient_contact, patient_email,
				appointment_date, time_slot, consultation_fee, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			a.ID, a.DoctorID, a.PatientID, a.PatientName, a.PatientContact, a.PatientEmail,
			a.AppointmentDate, a.TimeSlot, a.ConsultationFee, a.Status, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		booked.AppointmentID = a.ID
		booked.ChangedAt = now
		return r.insertHistory(ctx, booked)
	})
}

func (r *AppointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *AppointmentRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AppointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE patient_id = $1
		ORDER BY appointment_date DESC, created_at DESC`, patientID)
}

func (r *AppointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status lifecycle.AppointmentStatus) ([]*Appointment, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE doctor_id = $1
			ORDER BY appointment_date, time_slot`, doctorID)
	}
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE doctor_id = $1 AND status = $2
		ORDER BY appointment_date, time_slot`, doctorID, status)
}

func (r *AppointmentRepoPG) Transition(ctx context.Context, change *StatusChange) (*Appointment, error) {
	var out *Appointment
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		change.ChangedAt = time.Now().UTC()
		a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
			UPDATE appointments SET status = $3, updated_at = $4
			WHERE id = $1 AND status = $2
			RETURNING `+apptCols,
			change.AppointmentID, change.From, change.To, change.ChangedAt))
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict("appointment is no longer %s", change.From)
		}
		if err != nil {
			return err
		}
		out = a
		return r.insertHistory(ctx, change)
	})
	return out, err
}

func (r *AppointmentRepoPG) History(ctx context.Context, appointmentID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_id, from_status, to_status, changed_by, changed_role, changed_at
		FROM appointment_status_history WHERE appointment_id = $1
		ORDER BY changed_at, id`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("appointment history: %w", err)
	}
	defer rows.Close()
	var out []*StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.AppointmentID, &c.From, &c.To, &c.ChangedBy, &c.ChangedRole, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
