package user

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

type Service struct {
	repo UserRepository
}

func NewService(repo UserRepository) *Service {
	return &Service{repo: repo}
}

// Authenticate verifies a username and password. Unknown usernames, wrong
// passwords and deactivated accounts all come back as ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Active {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// CreateInput carries a new account. Role defaults to doctor when empty.
type CreateInput struct {
	Username string
	Password string
	Role     string
	FullName string
	Email    string
	Location string
	DoctorID *uuid.UUID
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, ErrUsernameRequired
	}
	if len(in.Password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}
	role := in.Role
	if role == "" {
		role = RoleDoctor
	}
	switch role {
	case RoleAdmin, RoleDoctor, RoleAssistant:
	default:
		return nil, ErrInvalidRole
	}
	if role == RoleAssistant && in.DoctorID == nil {
		return nil, ErrDoctorLinkRequired
	}

	if _, err := s.repo.GetByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:     in.Username,
		PasswordHash: string(hash),
		Role:         role,
		FullName:     optional(in.FullName),
		Email:        optional(in.Email),
		Location:     optional(in.Location),
		Active:       true,
		DoctorID:     in.DoctorID,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// EnsureAdmin creates the named admin account unless it already exists.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if _, err := s.Create(ctx, CreateInput{Username: username, Password: password, Role: RoleAdmin}); err != nil {
		return false, err
	}
	return true, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
