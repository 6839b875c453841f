package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docreg/docreg/internal/domain/patient"
	"github.com/docreg/docreg/internal/domain/user"
	"github.com/docreg/docreg/internal/platform/db"
)

// testDB bundles what every test in the package needs from the shared
// database.
type testDB struct {
	Pool *pgxpool.Pool
}

// globalDB is shared by every test in the package. Isolation comes from
// data, not schemas: each test creates its own doctor account and all
// queries are scoped by doctor_id.
var globalDB *testDB

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pool, cleanup, err := bootDatabase(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration setup:", err)
		return 1
	}
	defer cleanup()

	globalDB = &testDB{Pool: pool}
	return m.Run()
}

// bootDatabase starts a Postgres container, opens a pool against it and
// brings the schema up to date.
func bootDatabase(ctx context.Context) (*pgxpool.Pool, func(), error) {
	connStr, stopContainer, err := startPostgresContainer(ctx)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		stopContainer()
		return nil, nil, fmt.Errorf("open pool: %w", err)
	}
	cleanup := func() {
		pool.Close()
		stopContainer()
	}

	if err := pool.Ping(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.NewMigrator(pool, migrationsDir()).Up(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return pool, cleanup, nil
}

// migrationsDir resolves the repo's migrations directory from this file's
// location, so tests work from any working directory.
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// uniqueName returns prefix plus a random suffix so records from different
// tests never collide on unique columns.
func uniqueName(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func newUserService() *user.Service {
	return user.NewService(user.NewUserRepoPG(globalDB.Pool))
}

// createTestDoctor provisions a fresh doctor account for one test's scope.
func createTestDoctor(t *testing.T, ctx context.Context) *user.User {
	t.Helper()
	doc, err := newUserService().Create(ctx, user.CreateInput{
		Username: uniqueName("dr"),
		Password: "testpass123",
		Role:     user.RoleDoctor,
		FullName: "Dr. Integration",
	})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return doc
}

// createTestAssistant provisions an assistant linked to the given doctor.
func createTestAssistant(t *testing.T, ctx context.Context, doctorID uuid.UUID) *user.User {
	t.Helper()
	asst, err := newUserService().Create(ctx, user.CreateInput{
		Username: uniqueName("asst"),
		Password: "testpass123",
		Role:     user.RoleAssistant,
		DoctorID: &doctorID,
	})
	if err != nil {
		t.Fatalf("create assistant: %v", err)
	}
	return asst
}

// createTestPatient seeds a record straight through the repository, skipping
// the duplicate check the service would run.
func createTestPatient(t *testing.T, ctx context.Context, doctorID uuid.UUID, name, phone string, dob *time.Time) *patient.Patient {
	t.Helper()
	rec := &patient.Patient{DoctorID: doctorID, FullName: name, DateOfBirth: dob}
	if phone != "" {
		rec.Phone = &phone
	}
	if err := patient.NewPatientRepoPG(globalDB.Pool).Create(ctx, rec); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	return rec
}

// dateVal parses an ISO date for test fixtures.
func dateVal(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic("bad test date: " + s)
	}
	return &d
}
