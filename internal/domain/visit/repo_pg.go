package visit

import (
	"context"
	"errors"

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

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitCols = `id, patient_id, visit_date, clinician, notes, created_by, created_at`

func (r *visitRepoPG) scanRow(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.VisitDate, &v.Clinician, &v.Notes, &v.CreatedBy, &v.CreatedAt)
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit (id, patient_id, visit_date, clinician, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		v.ID, v.PatientID, v.VisitDate, v.Clinician, v.Notes, v.CreatedBy).
		Scan(&v.CreatedAt)
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *visitRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	return err
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visit WHERE patient_id = $1 ORDER BY visit_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *visitRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT v.id, v.patient_id, v.visit_date, v.clinician, v.notes, v.created_by, v.created_at
		FROM visit v
		JOIN patient p ON p.id = v.patient_id
		WHERE p.doctor_id = $1
		ORDER BY v.patient_id, v.visit_date DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *visitRepoPG) collect(rows pgx.Rows) ([]*Visit, error) {
	var items []*Visit
	for rows.Next() {
		v, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func (r *visitRepoPG) AddDiagnosis(ctx context.Context, d *Diagnosis) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnosis (id, visit_id, code, description)
		VALUES ($1,$2,$3,$4)`,
		d.ID, d.VisitID, d.Code, d.Description)
	return err
}

func (r *visitRepoPG) ListDiagnoses(ctx context.Context, visitID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, visit_id, code, description FROM diagnosis WHERE visit_id = $1 ORDER BY id`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDiagnoses(rows)
}

func (r *visitRepoPG) ListDiagnosesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.visit_id, d.code, d.description
		FROM diagnosis d
		JOIN visit v ON v.id = d.visit_id
		JOIN patient p ON p.id = v.patient_id
		WHERE p.doctor_id = $1
		ORDER BY d.visit_id, d.id`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDiagnoses(rows)
}

func collectDiagnoses(rows pgx.Rows) ([]*Diagnosis, error) {
	var items []*Diagnosis
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.VisitID, &d.Code, &d.Description); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, nil
}
