package user

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository is the persistence boundary for accounts.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
