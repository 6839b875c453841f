package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// UpdateContact writes phone and date of birth only; the name and the
	// owning doctor never change on this path.
	UpdateContact(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListCandidates returns every record in one doctor's scope in creation
	// order, minus the record being edited. This is the pool the duplicate
	// check scans.
	ListCandidates(ctx context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*Patient, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, q string, limit, offset int) ([]*Patient, int, error)
	// ListAccessible widens ListByDoctor with records the acting user has
	// created visits for, covering patients shared across practices.
	ListAccessible(ctx context.Context, doctorID, userID uuid.UUID, q string, limit, offset int) ([]*Patient, int, error)
}
