package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNameRequired   = errors.New("full name is required")
	ErrDoctorRequired = errors.New("doctor scope is required")
	ErrNotFound       = errors.New("patient not found")
)

// Patient maps to the patient table. Every record belongs to exactly one
// doctor; duplicate detection never looks outside that doctor's records.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	DoctorID    uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	FullName    string     `db:"full_name" json:"full_name"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Identity returns the record's normalized identity.
func (p *Patient) Identity() Identity {
	return NormalizeIdentity(p.FullName, strVal(p.Phone))
}

// Age returns the patient's age in whole years at the given date, or -1
// when the date of birth is unknown.
func (p *Patient) Age(at time.Time) int {
	if p.DateOfBirth == nil {
		return -1
	}
	dob := *p.DateOfBirth
	age := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		age--
	}
	return age
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
