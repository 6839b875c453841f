package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, sql := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestMigrator_LoadMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"003_visit.sql":   "CREATE TABLE visit (id UUID PRIMARY KEY);",
		"001_init.sql":    "CREATE TABLE app_user (id UUID PRIMARY KEY);",
		"002_patient.sql": "CREATE TABLE patient (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, want := range []int{1, 2, 3} {
		if migrations[i].Version != want {
			t.Errorf("position %d: expected version %d, got %d", i, want, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_init.sql" {
		t.Errorf("expected 001_init.sql first, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE app_user (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL: %s", migrations[0].SQL)
	}
}

func TestMigrator_LoadMigrations_SkipsUnversionedFiles(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_valid.sql":   "SELECT 1;",
		"010_gap.sql":     "SELECT 10;",
		"abc_invalid.sql": "-- non-numeric prefix",
		"readme.sql":      "-- no version prefix",
		"notes.txt":       "not sql at all",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 runnable migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 10 {
		t.Errorf("unexpected versions: %d, %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestMigrator_LoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestMigrator_LoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/no/such/directory").LoadMigrations(); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestVersionOf(t *testing.T) {
	cases := []struct {
		name    string
		version int
		ok      bool
	}{
		{"001_init.sql", 1, true},
		{"010_indexes.sql", 10, true},
		{"7_short.sql", 7, true},
		{"readme.sql", 0, false},
		{"abc_invalid.sql", 0, false},
		{"001_init.txt", 0, false},
	}
	for _, tc := range cases {
		v, ok := versionOf(tc.name)
		if v != tc.version || ok != tc.ok {
			t.Errorf("versionOf(%q) = %d, %v; expected %d, %v", tc.name, v, ok, tc.version, tc.ok)
		}
	}
}
