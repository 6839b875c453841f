package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUsernameRequired   = errors.New("username is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrInvalidRole        = errors.New("role must be admin, doctor or assistant")
	ErrDoctorLinkRequired = errors.New("assistant accounts must name their doctor")
	ErrNotFound           = errors.New("user not found")
)

// Roles understood by the service. Assistants act in their doctor's
// patient-record scope; admins are unrestricted.
const (
	RoleAdmin     = "admin"
	RoleDoctor    = "doctor"
	RoleAssistant = "assistant"
)

type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	FullName     *string    `db:"full_name" json:"full_name,omitempty"`
	Email        *string    `db:"email" json:"email,omitempty"`
	Location     *string    `db:"location" json:"location,omitempty"`
	Active       bool       `db:"active" json:"active"`
	DoctorID     *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ScopeID is the patient-record scope the user acts in: assistants resolve
// to their doctor's id, doctors to their own. Admins carry no fixed scope
// and pick one per request when they need to.
func (u *User) ScopeID() string {
	switch u.Role {
	case RoleAssistant:
		if u.DoctorID != nil {
			return u.DoctorID.String()
		}
		return ""
	case RoleDoctor:
		return u.ID.String()
	default:
		return ""
	}
}
