package drug

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Khr29/MediScanQR/internal/platform/httperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AddInput carries the fields of a catalog addition request.
type AddInput struct {
	Name         string  `json:"name"`
	Manufacturer string  `json:"manufacturer"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
}

func (in *AddInput) validate() []httperr.FieldError {
	var fields []httperr.FieldError
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, httperr.FieldError{Field: "name", Message: "name is required"})
	}
	if strings.TrimSpace(in.Manufacturer) == "" {
		fields = append(fields, httperr.FieldError{Field: "manufacturer", Message: "manufacturer is required"})
	}
	if in.Price <= 0 {
		fields = append(fields, httperr.FieldError{Field: "price", Message: "price must be greater than zero"})
	}
	return fields
}

// Add inserts a catalog entry. Name uniqueness is the database index's job;
// a duplicate surfaces as Conflict regardless of letter case.
func (s *Service) Add(ctx context.Context, in AddInput) (*Drug, error) {
	if fields := in.validate(); len(fields) > 0 {
		return nil, httperr.InvalidInput("drug is invalid", fields...)
	}
	d := &Drug{
		Name:         strings.TrimSpace(in.Name),
		Manufacturer: strings.TrimSpace(in.Manufacturer),
		Description:  strings.TrimSpace(in.Description),
		Price:        in.Price,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return nil, httperr.Conflict("a drug with this name already exists")
		}
		return nil, httperr.Internal("failed to add drug", err)
	}
	return d, nil
}

// List returns the catalog ordered by name ascending.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	items, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal("failed to list drugs", err)
	}
	return items, total, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Drug, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.NotFound("drug not found")
		}
		return nil, httperr.Internal("failed to look up drug", err)
	}
	return d, nil
}
