package drug

import (
	"time"

	"github.com/google/uuid"
)

// Drug maps to the drugs table: one catalog entry per medication name.
type Drug struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Manufacturer string    `db:"manufacturer" json:"manufacturer"`
	Description  string    `db:"description" json:"description,omitempty"`
	Price        float64   `db:"price" json:"price"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
