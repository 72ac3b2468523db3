package prescription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no prescription matches the lookup.
var ErrNotFound = errors.New("prescription not found")

// ErrAlreadyDispensed is returned by Dispense when the one-shot transition
// already happened, whether seconds or months ago.
var ErrAlreadyDispensed = errors.New("prescription already dispensed")

type Repository interface {
	// Create persists the prescription and its lines atomically. The record
	// starts with an empty scan artifact; AttachArtifact completes it.
	Create(ctx context.Context, p *Prescription) error
	// AttachArtifact stores the rendered scan artifact for an existing record.
	AttachArtifact(ctx context.Context, id uuid.UUID, artifact string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// ListByDoctor returns the doctor's prescriptions newest first.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	// ListAll returns every prescription newest first.
	ListAll(ctx context.Context, limit, offset int) ([]*Prescription, int, error)
	// Dispense performs the one-shot conditional transition to fulfilled.
	// Exactly one caller ever succeeds for a given id; later callers get
	// ErrAlreadyDispensed, unknown ids ErrNotFound.
	Dispense(ctx context.Context, id uuid.UUID, at time.Time) error
}
