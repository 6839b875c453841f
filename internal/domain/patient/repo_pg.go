package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docreg/docreg/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, doctor_id, full_name, phone, date_of_birth, created_at, updated_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.DoctorID, &p.FullName, &p.Phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

// phoneNorm derives the phone_norm column value. Absent phones store NULL
// so the uniqueness index can coalesce them.
func phoneNorm(phone *string) *string {
	if phone == nil {
		return nil
	}
	n := NormalizePhone(*phone)
	if n == "" {
		return nil
	}
	return &n
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, doctor_id, full_name, phone, date_of_birth, name_norm, phone_norm)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		p.ID, p.DoctorID, p.FullName, p.Phone, p.DateOfBirth,
		NormalizeName(p.FullName), phoneNorm(p.Phone)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET full_name=$2, phone=$3, date_of_birth=$4,
			name_norm=$5, phone_norm=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.Phone, p.DateOfBirth,
		NormalizeName(p.FullName), phoneNorm(p.Phone)).
		Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *patientRepoPG) UpdateContact(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET phone=$2, date_of_birth=$3, phone_norm=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Phone, p.DateOfBirth, phoneNorm(p.Phone)).
		Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) ListCandidates(ctx context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*Patient, error) {
	query := `SELECT ` + patientCols + ` FROM patient WHERE doctor_id = $1`
	args := []interface{}{doctorID}
	if excludeID != nil {
		query += ` AND id <> $2`
		args = append(args, *excludeID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

func (r *patientRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, q string, limit, offset int) ([]*Patient, int, error) {
	return r.list(ctx, `doctor_id = $1`, []interface{}{doctorID}, q, limit, offset)
}

func (r *patientRepoPG) ListAccessible(ctx context.Context, doctorID, userID uuid.UUID, q string, limit, offset int) ([]*Patient, int, error) {
	where := `(doctor_id = $1 OR id IN (SELECT DISTINCT patient_id FROM visit WHERE created_by = $2))`
	return r.list(ctx, where, []interface{}{doctorID, userID}, q, limit, offset)
}

func (r *patientRepoPG) list(ctx context.Context, where string, args []interface{}, q string, limit, offset int) ([]*Patient, int, error) {
	if q != "" {
		args = append(args, "%"+q+"%")
		where += fmt.Sprintf(` AND (full_name ILIKE $%d OR phone ILIKE $%d)`, len(args), len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listSQL := fmt.Sprintf(`SELECT %s FROM patient WHERE %s ORDER BY full_name, created_at LIMIT $%d OFFSET $%d`,
		patientCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, listSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
