package visit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docreg/docreg/internal/domain/patient"
)

// PatientDirectory is the slice of the patient service visits rely on:
// loading a record with the caller's scope enforced.
type PatientDirectory interface {
	Get(ctx context.Context, id, scope uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	repo     VisitRepository
	patients PatientDirectory
}

func NewService(repo VisitRepository, patients PatientDirectory) *Service {
	return &Service{repo: repo, patients: patients}
}

// CreateVisit records an encounter for a patient in the caller's scope.
// A zero visit date means now.
func (s *Service) CreateVisit(ctx context.Context, scope uuid.UUID, v *Visit) error {
	if _, err := s.patients.Get(ctx, v.PatientID, scope); err != nil {
		return err
	}
	if v.VisitDate.IsZero() {
		v.VisitDate = time.Now().UTC()
	}
	return s.repo.Create(ctx, v)
}

// GetVisit loads a visit with its diagnoses. Visits of patients outside
// the caller's scope read as not found.
func (s *Service) GetVisit(ctx context.Context, scope, id uuid.UUID) (*Visit, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.Get(ctx, v.PatientID, scope); err != nil {
		return nil, ErrNotFound
	}
	diags, err := s.repo.ListDiagnoses(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	v.Diagnoses = diags
	return v, nil
}

// ListVisits returns a patient's visits, newest first.
func (s *Service) ListVisits(ctx context.Context, scope, patientID uuid.UUID) ([]*Visit, error) {
	if _, err := s.patients.Get(ctx, patientID, scope); err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, patientID)
}

// AddDiagnosis attaches a diagnosis to a visit. The description is
// required; the code is optional.
func (s *Service) AddDiagnosis(ctx context.Context, scope uuid.UUID, d *Diagnosis) error {
	d.Description = strings.TrimSpace(d.Description)
	if d.Description == "" {
		return ErrDescriptionRequired
	}
	v, err := s.repo.GetByID(ctx, d.VisitID)
	if err != nil {
		return err
	}
	if _, err := s.patients.Get(ctx, v.PatientID, scope); err != nil {
		return ErrNotFound
	}
	return s.repo.AddDiagnosis(ctx, d)
}

// DeleteVisit removes a visit and its diagnoses.
func (s *Service) DeleteVisit(ctx context.Context, scope, id uuid.UUID) error {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.patients.Get(ctx, v.PatientID, scope); err != nil {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}
