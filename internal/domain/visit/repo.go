package visit

import (
	"context"

	"github.com/google/uuid"
)

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Visit, error)
	// ListByDoctor returns every visit of the doctor's patients, newest
	// first within each patient. Feeds the workbook export.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Visit, error)
	AddDiagnosis(ctx context.Context, d *Diagnosis) error
	ListDiagnoses(ctx context.Context, visitID uuid.UUID) ([]*Diagnosis, error)
	// ListDiagnosesByDoctor loads all diagnoses behind ListByDoctor in one
	// round trip so the export can group them without per-visit queries.
	ListDiagnosesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Diagnosis, error)
}
