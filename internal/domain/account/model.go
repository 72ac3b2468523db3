package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/Khr29/MediScanQR/internal/platform/auth"
)

// Account maps to the accounts table. The password hash never leaves the
// service layer in serialized form.
type Account struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         auth.Role `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
