package drug

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicateName is returned by Create when the name is already in the
// catalog, case-insensitively. The unique index on lower(name) is the source
// of truth; there is no application-level pre-check.
var ErrDuplicateName = errors.New("drug name already in catalog")

// ErrNotFound is returned when no drug matches the lookup.
var ErrNotFound = errors.New("drug not found")

type Repository interface {
	Create(ctx context.Context, d *Drug) error
	GetByID(ctx context.Context, id uuid.UUID) (*Drug, error)
	// GetByIDs returns the drugs found for the given ids, keyed by id.
	// Missing ids are simply absent from the map.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Drug, error)
	// List returns drugs ordered by name ascending.
	List(ctx context.Context, limit, offset int) ([]*Drug, int, error)
}
