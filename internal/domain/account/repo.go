package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicateEmail is returned by Create when the email is already taken,
// case-insensitively. The unique index on lower(email) is the source of truth;
// there is no application-level pre-check.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("account not found")

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
}
