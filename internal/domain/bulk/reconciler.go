package bulk

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/docreg/docreg/internal/domain/patient"
	"github.com/docreg/docreg/internal/domain/visit"
)

// Resolver answers duplicate checks for one incoming identity. Satisfied by
// patient.Service.
type Resolver interface {
	Resolve(ctx context.Context, in patient.ResolveInput) (patient.Verdict, error)
}

// Reconciler folds an import batch into one doctor's records, row by row in
// file order. Later rows see earlier rows' effects: the whole batch runs
// inside a single transaction holding the scope lock, and commits or rolls
// back as one.
type Reconciler struct {
	resolver Resolver
	patients patient.PatientRepository
	visits   visit.VisitRepository
	lock     patient.ScopeLocker
}

func NewReconciler(resolver Resolver, patients patient.PatientRepository, visits visit.VisitRepository, lock patient.ScopeLocker) *Reconciler {
	return &Reconciler{resolver: resolver, patients: patients, visits: visits, lock: lock}
}

// Reconcile classifies every row as created, updated or skipped and applies
// the result. Duplicates and updates are expected outcomes, never errors;
// store failures abort and roll back the whole batch. actorID, when known,
// is recorded on visits the batch creates.
func (r *Reconciler) Reconcile(ctx context.Context, doctorID uuid.UUID, rows []Row, actorID *uuid.UUID) (*Outcome, error) {
	if doctorID == uuid.Nil {
		return nil, patient.ErrDoctorRequired
	}

	out := &Outcome{}
	err := r.lock.WithinScope(ctx, doctorID.String(), func(ctx context.Context) error {
		for _, row := range rows {
			if err := r.reconcileRow(ctx, doctorID, row, actorID, out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("doctor_id", doctorID.String()).
		Int("created", out.CreatedCount).
		Int("updated", out.UpdatedCount).
		Int("skipped", out.SkippedCount).
		Int("row_errors", len(out.Errors)).
		Msg("import batch reconciled")
	return out, nil
}

func (r *Reconciler) reconcileRow(ctx context.Context, doctorID uuid.UUID, row Row, actorID *uuid.UUID, out *Outcome) error {
	// Import rows never exclude a record: the batch is not an edit of a
	// known record, so every row is checked against the full pool.
	v, err := r.resolver.Resolve(ctx, patient.ResolveInput{
		DoctorID: doctorID,
		FullName: row.FullName,
		Phone:    row.Phone,
	})
	if err != nil {
		if errors.Is(err, patient.ErrNameRequired) {
			out.Errors = append(out.Errors, RowError{Line: row.Line, Reason: err.Error()})
			return nil
		}
		return err
	}

	v = classify(v, row)

	var target *patient.Patient
	switch v.Outcome {
	case patient.MatchNone:
		p := &patient.Patient{
			DoctorID:    doctorID,
			FullName:    strings.TrimSpace(row.FullName),
			Phone:       optional(row.Phone),
			DateOfBirth: row.DateOfBirth,
		}
		if err := r.patients.Create(ctx, p); err != nil {
			return err
		}
		out.CreatedCount++
		out.CreatedRecords = append(out.CreatedRecords, p)
		target = p

	case patient.MatchUpdate:
		target = v.Existing
		applyContact(target, row)
		if err := r.patients.UpdateContact(ctx, target); err != nil {
			return err
		}
		out.UpdatedCount++
		out.UpdatedRecords = append(out.UpdatedRecords, UpdatedRecord{Patient: target, ChangedFields: v.ChangedFields})

	case patient.MatchBlock:
		// Exact duplicate: the matched record already holds the row's
		// values. Nothing to write.
		target = v.Existing
		out.SkippedCount++
	}

	if target != nil && row.HasVisit() {
		return r.appendVisit(ctx, target.ID, row, actorID)
	}
	return nil
}

// classify upgrades a block verdict to an update when the row carries
// contact values the matched record does not hold yet.
func classify(v patient.Verdict, row Row) patient.Verdict {
	if v.Outcome != patient.MatchBlock {
		return v
	}
	if changed := diffContact(v.Existing, row); len(changed) > 0 {
		return patient.Verdict{Outcome: patient.MatchUpdate, Existing: v.Existing, ChangedFields: changed}
	}
	return v
}

// diffContact lists the mutable fields the row would change, compared
// against the stored values exactly as persisted. The name and the owning
// doctor are never candidates.
func diffContact(existing *patient.Patient, row Row) []string {
	var changed []string
	if phone := strings.TrimSpace(row.Phone); phone != "" {
		if existing.Phone == nil || *existing.Phone != phone {
			changed = append(changed, "phone")
		}
	}
	if row.DateOfBirth != nil {
		if existing.DateOfBirth == nil || !existing.DateOfBirth.Equal(*row.DateOfBirth) {
			changed = append(changed, "date_of_birth")
		}
	}
	return changed
}

func applyContact(p *patient.Patient, row Row) {
	if phone := strings.TrimSpace(row.Phone); phone != "" {
		p.Phone = &phone
	}
	if row.DateOfBirth != nil {
		p.DateOfBirth = row.DateOfBirth
	}
}

func (r *Reconciler) appendVisit(ctx context.Context, patientID uuid.UUID, row Row, actorID *uuid.UUID) error {
	when := time.Now().UTC()
	if row.VisitDate != nil {
		when = *row.VisitDate
	}
	v := &visit.Visit{
		PatientID: patientID,
		VisitDate: when,
		Clinician: optional(row.Clinician),
		Notes:     optional(row.Notes),
		CreatedBy: actorID,
	}
	if err := r.visits.Create(ctx, v); err != nil {
		return err
	}
	if desc := strings.TrimSpace(row.DiagnosisDescription); desc != "" {
		return r.visits.AddDiagnosis(ctx, &visit.Diagnosis{
			VisitID:     v.ID,
			Code:        optional(row.DiagnosisCode),
			Description: desc,
		})
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
