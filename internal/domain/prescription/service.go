package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Khr29/MediScanQR/internal/domain/drug"
	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
	"github.com/Khr29/MediScanQR/internal/platform/metrics"
	"github.com/Khr29/MediScanQR/internal/platform/notify"
	"github.com/Khr29/MediScanQR/internal/platform/qr"
)

// Catalog is the slice of the drug repository the engine needs: bulk lookup
// for line validation and resolution.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*drug.Drug, error)
}

// ArtifactEncoder renders a prescription id into its scan artifact.
type ArtifactEncoder func(id uuid.UUID) (string, error)

type Service struct {
	repo     Repository
	catalog  Catalog
	encode   ArtifactEncoder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	notifier notify.Notifier
}

func NewService(repo Repository, catalog Catalog, encode ArtifactEncoder, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if encode == nil {
		encode = qr.Encode
	}
	return &Service{repo: repo, catalog: catalog, encode: encode, metrics: m, logger: logger, notifier: notify.Noop{}}
}

// SetNotifier attaches an optional lifecycle notifier.
func (s *Service) SetNotifier(n notify.Notifier) {
	s.notifier = n
}

// CreateInput carries the fields of a prescription creation request.
type CreateInput struct {
	PatientName  string      `json:"patient_name"`
	Instructions string      `json:"instructions"`
	Lines        []LineInput `json:"lines"`
}

type LineInput struct {
	DrugID     string `json:"drug_id"`
	Quantity   int    `json:"quantity"`
	DosageText string `json:"dosage_text"`
	Notes      string `json:"notes"`
}

// Create validates the request, persists the prescription with its lines and
// then attaches the rendered scan artifact as a second write. A rendering or
// attachment failure leaves the record persisted without an artifact; reads
// retry the attachment.
func (s *Service) Create(ctx context.Context, doctorID *uuid.UUID, in CreateInput) (*Prescription, error) {
	var fields []httperr.FieldError
	if strings.TrimSpace(in.PatientName) == "" {
		fields = append(fields, httperr.FieldError{Field: "patient_name", Message: "patient name is required"})
	}
	if len(in.Lines) == 0 {
		fields = append(fields, httperr.FieldError{Field: "lines", Message: "at least one line is required"})
	}

	lines := make([]Line, 0, len(in.Lines))
	var drugIDs []uuid.UUID
	for i, li := range in.Lines {
		field := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }
		drugID, err := uuid.Parse(li.DrugID)
		if err != nil {
			fields = append(fields, httperr.FieldError{Field: field("drug_id"), Message: "drug id is required"})
		} else {
			drugIDs = append(drugIDs, drugID)
		}
		if li.Quantity < 1 {
			fields = append(fields, httperr.FieldError{Field: field("quantity"), Message: "quantity must be at least 1"})
		}
		if strings.TrimSpace(li.DosageText) == "" {
			fields = append(fields, httperr.FieldError{Field: field("dosage_text"), Message: "dosage is required"})
		}
		lines = append(lines, Line{
			DrugID:     drugID,
			Quantity:   li.Quantity,
			DosageText: strings.TrimSpace(li.DosageText),
			Notes:      strings.TrimSpace(li.Notes),
		})
	}
	if len(fields) > 0 {
		return nil, httperr.InvalidInput("prescription is invalid", fields...)
	}

	// Every referenced drug must exist in the catalog.
	drugs, err := s.catalog.GetByIDs(ctx, drugIDs)
	if err != nil {
		return nil, httperr.Internal("failed to resolve drugs", err)
	}
	for i, line := range lines {
		if _, ok := drugs[line.DrugID]; !ok {
			fields = append(fields, httperr.FieldError{
				Field:   fmt.Sprintf("lines[%d].drug_id", i),
				Message: "drug does not exist",
			})
		}
	}
	if len(fields) > 0 {
		return nil, httperr.InvalidInput("prescription is invalid", fields...)
	}

	p := &Prescription{
		DoctorID:     doctorID,
		PatientName:  strings.TrimSpace(in.PatientName),
		Instructions: strings.TrimSpace(in.Instructions),
		Lines:        lines,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, httperr.Internal("failed to create prescription", err)
	}
	s.metrics.PrescriptionsCreated.Inc()

	// Second phase: render and attach the scan artifact. The record already
	// exists; a failure here does not roll it back.
	artifact, err := s.encode(p.ID)
	if err == nil {
		err = s.repo.AttachArtifact(ctx, p.ID, artifact)
	}
	if err != nil {
		s.metrics.ArtifactFailures.Inc()
		s.logger.Error().Err(err).Str("prescription_id", p.ID.String()).
			Msg("failed to attach scan artifact")
		return nil, httperr.EncodingFailed(err)
	}
	p.ScanArtifact = artifact
	s.notifier.Notify(ctx, notify.EventPrescriptionCreated, p.ID)

	s.resolve(drugs, p)
	return p, nil
}

// resolve attaches catalog summaries to each line.
func (s *Service) resolve(drugs map[uuid.UUID]*drug.Drug, ps ...*Prescription) {
	for _, p := range ps {
		for i := range p.Lines {
			if d, ok := drugs[p.Lines[i].DrugID]; ok {
				p.Lines[i].Drug = &LineDrug{
					Name:         d.Name,
					Manufacturer: d.Manufacturer,
					Price:        d.Price,
				}
			}
		}
	}
}

func (s *Service) resolveAll(ctx context.Context, ps ...*Prescription) error {
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, p := range ps {
		for _, line := range p.Lines {
			if _, ok := seen[line.DrugID]; !ok {
				seen[line.DrugID] = struct{}{}
				ids = append(ids, line.DrugID)
			}
		}
	}
	drugs, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	s.resolve(drugs, ps...)
	return nil
}

// repairArtifact attaches a scan artifact to a record that was persisted
// without one. Best effort: a failure leaves the record readable and the next
// read tries again.
func (s *Service) repairArtifact(ctx context.Context, p *Prescription) {
	if p.ScanArtifact != "" {
		return
	}
	artifact, err := s.encode(p.ID)
	if err == nil {
		err = s.repo.AttachArtifact(ctx, p.ID, artifact)
	}
	if err != nil {
		s.metrics.ArtifactFailures.Inc()
		s.logger.Warn().Err(err).Str("prescription_id", p.ID.String()).
			Msg("failed to repair scan artifact")
		return
	}
	p.ScanArtifact = artifact
}

// GetByID fetches a single prescription under the caller's visibility rules:
// doctors see only their own records and get NotFound, not Forbidden, for
// anyone else's; pharmacists and admins see everything.
func (s *Service) GetByID(ctx context.Context, ident auth.Identity, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.NotFound("prescription not found")
		}
		return nil, httperr.Internal("failed to look up prescription", err)
	}
	if ident.Role == auth.RoleDoctor {
		if p.DoctorID == nil || *p.DoctorID != ident.AccountID {
			// Existence of other doctors' records is not disclosed.
			return nil, httperr.NotFound("prescription not found")
		}
	}

	s.repairArtifact(ctx, p)
	if err := s.resolveAll(ctx, p); err != nil {
		return nil, httperr.Internal("failed to resolve drugs", err)
	}
	return p, nil
}

// ListForDoctor returns the doctor's prescriptions newest first, resolved.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	items, total, err := s.repo.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal("failed to list prescriptions", err)
	}
	if err := s.resolveAll(ctx, items...); err != nil {
		return nil, 0, httperr.Internal("failed to resolve drugs", err)
	}
	return items, total, nil
}

// ListAll returns every prescription newest first, resolved.
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	items, total, err := s.repo.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal("failed to list prescriptions", err)
	}
	if err := s.resolveAll(ctx, items...); err != nil {
		return nil, 0, httperr.Internal("failed to resolve drugs", err)
	}
	return items, total, nil
}

// Dispense performs the one-shot fulfilled transition and returns the
// resolved record. A repeat attempt is the caller's error, never a success.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	err := s.repo.Dispense(ctx, id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, httperr.NotFound("prescription not found")
		case errors.Is(err, ErrAlreadyDispensed):
			s.metrics.DispenseConflicts.Inc()
			return nil, httperr.AlreadyDispensed()
		default:
			return nil, httperr.Internal("failed to dispense prescription", err)
		}
	}
	s.metrics.PrescriptionsDispensed.Inc()
	s.notifier.Notify(ctx, notify.EventPrescriptionDispensed, id)

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, httperr.Internal("failed to reload prescription", err)
	}
	if err := s.resolveAll(ctx, p); err != nil {
		return nil, httperr.Internal("failed to resolve drugs", err)
	}
	return p, nil
}

// Scan validates a scanned payload and resolves it to a prescription under
// the caller's visibility rules.
func (s *Service) Scan(ctx context.Context, ident auth.Identity, payload string) (*Prescription, error) {
	id, err := qr.DecodeAndValidate(payload)
	if err != nil {
		return nil, httperr.InvalidInput("scanned payload is not a prescription code")
	}
	return s.GetByID(ctx, ident, id)
}
