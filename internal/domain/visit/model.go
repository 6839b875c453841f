package visit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDescriptionRequired = errors.New("diagnosis description is required")
	ErrNotFound            = errors.New("visit not found")
)

// Visit is one patient encounter. Visits belong to their patient record;
// duplicate resolution never moves them between records.
type Visit struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitDate time.Time  `db:"visit_date" json:"visit_date"`
	Clinician *string    `db:"clinician" json:"clinician,omitempty"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`

	// Loaded on demand, not a column.
	Diagnoses []*Diagnosis `db:"-" json:"diagnoses,omitempty"`
}

type Diagnosis struct {
	ID          uuid.UUID `db:"id" json:"id"`
	VisitID     uuid.UUID `db:"visit_id" json:"visit_id"`
	Code        *string   `db:"code" json:"code,omitempty"`
	Description string    `db:"description" json:"description"`
}
