package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/docreg/docreg/internal/domain/bulk"
	"github.com/docreg/docreg/internal/domain/patient"
	"github.com/docreg/docreg/internal/domain/visit"
	"github.com/docreg/docreg/internal/platform/db"
)

func newReconciler() *bulk.Reconciler {
	patientRepo := patient.NewPatientRepoPG(globalDB.Pool)
	visitRepo := visit.NewVisitRepoPG(globalDB.Pool)
	locker := db.NewScopeLocker(globalDB.Pool)
	svc := patient.NewService(patientRepo, locker)
	return bulk.NewReconciler(svc, patientRepo, visitRepo, locker)
}

func TestReconciler_Batch(t *testing.T) {
	ctx := context.Background()
	doc := createTestDoctor(t, ctx)
	john := createTestPatient(t, ctx, doc.ID, "John Smith", "555-1234", nil)

	rows := []bulk.Row{
		{Line: 2, FullName: "john smith", Phone: "555-1234", DateOfBirth: dateVal("1980-04-12"),
			VisitDate: dateVal("2024-03-01"), Clinician: "Dr. Adams", DiagnosisCode: "I10", DiagnosisDescription: "Hypertension"},
		{Line: 3, FullName: "Mary Johnson", Phone: "555-5555"},
		{Line: 4, FullName: "Anna Lee"},
		{Line: 5, FullName: "John Smith", Phone: "555-1234", DateOfBirth: dateVal("1980-04-12"),
			VisitDate: dateVal("2024-04-02")},
		{Line: 6, FullName: "   ", Phone: "555-0000"},
	}

	out, err := newReconciler().Reconcile(ctx, doc.ID, rows, nil)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if out.CreatedCount != 2 {
		t.Errorf("created = %d, want 2", out.CreatedCount)
	}
	if out.UpdatedCount != 1 {
		t.Errorf("updated = %d, want 1", out.UpdatedCount)
	}
	if out.SkippedCount != 1 {
		t.Errorf("skipped = %d, want 1", out.SkippedCount)
	}
	if len(out.Errors) != 1 || out.Errors[0].Line != 6 {
		t.Errorf("errors = %+v, want one error on line 6", out.Errors)
	}

	repo := patient.NewPatientRepoPG(globalDB.Pool)
	_, total, err := repo.ListByDoctor(ctx, doc.ID, "", 50, 0)
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	if total != 3 {
		t.Fatalf("stored records = %d, want 3 (john, mary, anna)", total)
	}

	t.Run("ContactUpdatedInPlace", func(t *testing.T) {
		got, err := repo.GetByID(ctx, john.ID)
		if err != nil {
			t.Fatalf("get john: %v", err)
		}
		if got.DateOfBirth == nil || got.DateOfBirth.Format("2006-01-02") != "1980-04-12" {
			t.Errorf("date of birth = %v, want 1980-04-12 after update", got.DateOfBirth)
		}
		if got.FullName != "John Smith" {
			t.Errorf("full name = %q, the import row's casing must not overwrite it", got.FullName)
		}
		if len(out.UpdatedRecords) != 1 || out.UpdatedRecords[0].Patient.ID != john.ID {
			t.Fatalf("updated records = %+v, want john", out.UpdatedRecords)
		}
		if fields := out.UpdatedRecords[0].ChangedFields; len(fields) != 1 || fields[0] != "date_of_birth" {
			t.Errorf("changed fields = %v, want [date_of_birth]", fields)
		}
	})

	t.Run("VisitsAppendedForUpdatedAndSkipped", func(t *testing.T) {
		visitRepo := visit.NewVisitRepoPG(globalDB.Pool)
		visits, err := visitRepo.ListByPatient(ctx, john.ID)
		if err != nil {
			t.Fatalf("list visits: %v", err)
		}
		if len(visits) != 2 {
			t.Fatalf("visits = %d, want 2 (one from the update row, one from the skipped row)", len(visits))
		}

		diags, err := visitRepo.ListDiagnosesByDoctor(ctx, doc.ID)
		if err != nil {
			t.Fatalf("list diagnoses: %v", err)
		}
		if len(diags) != 1 || diags[0].Description != "Hypertension" {
			t.Errorf("diagnoses = %+v, want one Hypertension entry", diags)
		}
	})
}

// Re-importing a file that matches the store exactly must change nothing:
// every row skips.
func TestReconciler_Rerun(t *testing.T) {
	ctx := context.Background()
	doc := createTestDoctor(t, ctx)
	rec := newReconciler()

	rows := []bulk.Row{
		{Line: 2, FullName: "John Smith", Phone: "555-1234", DateOfBirth: dateVal("1980-04-12")},
		{Line: 3, FullName: "Mary Johnson", DateOfBirth: dateVal("1990-07-01")},
	}

	first, err := rec.Reconcile(ctx, doc.ID, rows, nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.CreatedCount != 2 || first.UpdatedCount != 0 || first.SkippedCount != 0 {
		t.Fatalf("first run = %d/%d/%d, want 2 created", first.CreatedCount, first.UpdatedCount, first.SkippedCount)
	}

	second, err := rec.Reconcile(ctx, doc.ID, rows, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.CreatedCount != 0 || second.UpdatedCount != 0 || second.SkippedCount != 2 {
		t.Errorf("second run = %d/%d/%d, want 2 skipped", second.CreatedCount, second.UpdatedCount, second.SkippedCount)
	}

	_, total, err := patient.NewPatientRepoPG(globalDB.Pool).ListByDoctor(ctx, doc.ID, "", 10, 0)
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	if total != 2 {
		t.Errorf("stored records = %d, want 2 after rerun", total)
	}
}

// Two imports of the same row racing on one doctor must not both create the
// record. The advisory lock serializes the batches; whichever runs second
// sees the first one's write and skips.
func TestReconciler_ConcurrentSameScope(t *testing.T) {
	ctx := context.Background()
	doc := createTestDoctor(t, ctx)

	const workers = 4
	rows := []bulk.Row{{Line: 2, FullName: "John Smith", Phone: "555-1234"}}

	outcomes := make([]*bulk.Outcome, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = newReconciler().Reconcile(ctx, doc.ID, rows, nil)
		}(i)
	}
	wg.Wait()

	created, skipped := 0, 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		created += outcomes[i].CreatedCount
		skipped += outcomes[i].SkippedCount
	}
	if created != 1 {
		t.Errorf("created across workers = %d, want exactly 1", created)
	}
	if skipped != workers-1 {
		t.Errorf("skipped across workers = %d, want %d", skipped, workers-1)
	}

	_, total, err := patient.NewPatientRepoPG(globalDB.Pool).ListByDoctor(ctx, doc.ID, "", 10, 0)
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	if total != 1 {
		t.Errorf("stored records = %d, want 1", total)
	}
}
