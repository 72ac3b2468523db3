package account

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
)

// -- Mock Repository --

type mockRepo struct {
	accounts map[uuid.UUID]*Account
}

func newMockRepo() *mockRepo {
	return &mockRepo{accounts: make(map[uuid.UUID]*Account)}
}

func (m *mockRepo) Create(_ context.Context, a *Account) error {
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return ErrDuplicateEmail
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*Account, error) {
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func validInput() RegisterInput {
	return RegisterInput{
		Name:     "Dr. Sarah Okafor",
		Email:    "sarah@example.com",
		Password: "correct horse battery",
		Role:     "doctor",
	}
}

func TestRegister(t *testing.T) {
	svc := NewService(newMockRepo())

	a, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("account id not assigned")
	}
	if a.Role != auth.RoleDoctor {
		t.Errorf("role = %s, want doctor", a.Role)
	}
	if a.PasswordHash == "" || a.PasswordHash == "correct horse battery" {
		t.Error("password not hashed")
	}
}

func TestRegisterDuplicateEmailIsConflict(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	// Same address with different letter case must still collide.
	in := validInput()
	in.Email = "SARAH@Example.COM"
	_, err := svc.Register(ctx, in)

	var he *httperr.Error
	if !errors.As(err, &he) || he.Status != http.StatusConflict {
		t.Fatalf("err = %v, want 409 conflict", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	cases := []struct {
		name      string
		mutate    func(*RegisterInput)
		wantField string
	}{
		{"missing name", func(in *RegisterInput) { in.Name = " " }, "name"},
		{"missing email", func(in *RegisterInput) { in.Email = "" }, "email"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-address" }, "email"},
		{"missing password", func(in *RegisterInput) { in.Password = "" }, "password"},
		{"short password", func(in *RegisterInput) { in.Password = "short" }, "password"},
		{"bad role", func(in *RegisterInput) { in.Role = "superuser" }, "role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Register(ctx, in)

			var he *httperr.Error
			if !errors.As(err, &he) || he.Status != http.StatusBadRequest {
				t.Fatalf("err = %v, want 400", err)
			}
			found := false
			for _, f := range he.Fields {
				if f.Field == tc.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("field errors %v do not name %q", he.Fields, tc.wantField)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	registered, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	a, err := svc.Login(ctx, "sarah@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if a.ID != registered.ID {
		t.Errorf("logged in as %s, want %s", a.ID, registered.ID)
	}
}

func TestLoginGenericFailure(t *testing.T) {
	// Unknown email and wrong password must be indistinguishable.
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, errUnknown := svc.Login(ctx, "nobody@example.com", "whatever-this-is")
	_, errWrongPw := svc.Login(ctx, "sarah@example.com", "wrong password!!")

	for _, err := range []error{errUnknown, errWrongPw} {
		var he *httperr.Error
		if !errors.As(err, &he) || he.Status != http.StatusUnauthorized {
			t.Fatalf("err = %v, want 401", err)
		}
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Errorf("login failures differ: %q vs %q", errUnknown, errWrongPw)
	}
}

func TestLookup(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	a, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ident, err := svc.Lookup(ctx, a.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ident.AccountID != a.ID || ident.Role != auth.RoleDoctor {
		t.Errorf("identity = %+v", ident)
	}

	if _, err := svc.Lookup(ctx, uuid.New()); !errors.Is(err, auth.ErrAccountNotFound) {
		t.Errorf("unknown id err = %v, want ErrAccountNotFound", err)
	}
}
