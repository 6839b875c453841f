package bulk

import (
	"strings"
	"time"

	"github.com/docreg/docreg/internal/domain/patient"
)

// Row is one parsed line of an import sheet. Line is the 1-based sheet row
// it came from, carried for error reporting.
type Row struct {
	Line                 int
	FullName             string
	Phone                string
	DateOfBirth          *time.Time
	VisitDate            *time.Time
	Clinician            string
	Notes                string
	DiagnosisCode        string
	DiagnosisDescription string
}

// HasVisit reports whether the row carries visit data. Such rows get a visit
// appended to their patient whatever the row's classification.
func (r Row) HasVisit() bool {
	return r.VisitDate != nil || strings.TrimSpace(r.DiagnosisDescription) != ""
}

// RowError is a per-row problem (missing name, unreadable cell). Rows with
// errors are reported and passed over; they never abort the batch.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// UpdatedRecord pairs a patient touched by an import with the names of the
// fields the batch changed.
type UpdatedRecord struct {
	Patient       *patient.Patient `json:"patient"`
	ChangedFields []string         `json:"changed_fields"`
}

// Outcome aggregates one reconciled batch. Skipped counts exact duplicates:
// rows whose matched record already held identical values.
type Outcome struct {
	CreatedCount   int                `json:"created_count"`
	UpdatedCount   int                `json:"updated_count"`
	SkippedCount   int                `json:"skipped_count"`
	CreatedRecords []*patient.Patient `json:"created_records"`
	UpdatedRecords []UpdatedRecord    `json:"updated_records"`
	Errors         []RowError         `json:"errors,omitempty"`
}
