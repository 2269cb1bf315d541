package medication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/db"
)

type MedicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) *MedicineRepoPG {
	return &MedicineRepoPG{pool: pool}
}

func (r *MedicineRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const medCols = `id, user_id, name, dosage, frequency, start_date, end_date, refill_warned_at, created_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency,
		&m.StartDate, &m.EndDate, &m.RefillWarnedAt, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("medicine not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan medicine: %w", err)
	}
	return &m, nil
}

func (r *MedicineRepoPG) list(ctx context.Context, query string, args ...any) ([]*Medicine, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()
	var out []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MedicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicines (id, user_id, name, dosage, frequency, start_date, end_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.UserID, m.Name, m.Dosage, m.Frequency, m.StartDate, m.EndDate, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

func (r *MedicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medicines WHERE id = $1`, id))
}

func (r *MedicineRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Medicine, error) {
	return r.list(ctx, `SELECT `+medCols+` FROM medicines WHERE user_id = $1 ORDER BY end_date, name`, userID)
}

func (r *MedicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete medicine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine not found")
	}
	return nil
}

func (r *MedicineRepoPG) DueForRefill(ctx context.Context, from, until time.Time) ([]*Medicine, error) {
	return r.list(ctx, `
		SELECT `+medCols+` FROM medicines
		WHERE refill_warned_at IS NULL AND end_date BETWEEN $1 AND $2
		ORDER BY end_date`, from, until)
}

func (r *MedicineRepoPG) MarkWarned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE medicines SET refill_warned_at = $2 WHERE id = $1 AND refill_warned_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark refill warned: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
