package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
)

const minPasswordLen = 8

// Service owns account registration, credential verification and profile
// lookups. It returns httperr values directly; handlers pass them through.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (in *RegisterInput) validate() []httperr.FieldError {
	var fields []httperr.FieldError
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, httperr.FieldError{Field: "name", Message: "name is required"})
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		fields = append(fields, httperr.FieldError{Field: "email", Message: "email is required"})
	} else if !strings.Contains(email, "@") {
		fields = append(fields, httperr.FieldError{Field: "email", Message: "email is not valid"})
	}
	if in.Password == "" {
		fields = append(fields, httperr.FieldError{Field: "password", Message: "password is required"})
	} else if len(in.Password) < minPasswordLen {
		fields = append(fields, httperr.FieldError{Field: "password", Message: "password must be at least 8 characters"})
	}
	if _, err := auth.ParseRole(in.Role); err != nil {
		fields = append(fields, httperr.FieldError{Field: "role", Message: "role must be one of patient, doctor, pharmacist, admin"})
	}
	return fields
}

// Register creates an account. The email uniqueness check is the database's
// unique index; a duplicate surfaces as Conflict regardless of letter case.
// The password is hashed only after validation passes.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	if fields := in.validate(); len(fields) > 0 {
		return nil, httperr.InvalidInput("registration request is invalid", fields...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, httperr.Internal("failed to hash password", err)
	}

	role, _ := auth.ParseRole(in.Role)
	a := &Account{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, httperr.Conflict("an account with this email already exists")
		}
		return nil, httperr.Internal("failed to create account", err)
	}
	return a, nil
}

// Login verifies credentials. Unknown email and wrong password return the
// same generic error so the endpoint cannot be used to enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*Account, error) {
	a, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.Unauthenticated("invalid email or password")
		}
		return nil, httperr.Internal("failed to look up account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, httperr.Unauthenticated("invalid email or password")
	}
	return a, nil
}

// GetByID returns the account profile.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.NotFound("account not found")
		}
		return nil, httperr.Internal("failed to look up account", err)
	}
	return a, nil
}

// Lookup implements auth.AccountSource: the live existence-and-role check the
// access guard performs on every authenticated request.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (auth.Identity, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Identity{}, auth.ErrAccountNotFound
		}
		return auth.Identity{}, err
	}
	return auth.Identity{AccountID: a.ID, Role: a.Role}, nil
}
