package prescription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Khr29/MediScanQR/internal/domain/drug"
	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
	"github.com/Khr29/MediScanQR/internal/platform/metrics"
)

// -- Mock Repository --

type mockRepo struct {
	mu  sync.Mutex
	rxs map[uuid.UUID]*Prescription
	seq int
}

func newMockRepo() *mockRepo {
	return &mockRepo{rxs: make(map[uuid.UUID]*Prescription)}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.Status = StatusActive
	p.Dispensed = false
	p.ScanArtifact = ""
	m.seq++
	p.CreatedAt = time.Unix(int64(m.seq), 0)
	p.UpdatedAt = p.CreatedAt
	cp := *p
	cp.Lines = append([]Line(nil), p.Lines...)
	m.rxs[p.ID] = &cp
	return nil
}

func (m *mockRepo) AttachArtifact(_ context.Context, id uuid.UUID, artifact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rxs[id]
	if !ok {
		return ErrNotFound
	}
	p.ScanArtifact = artifact
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rxs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Lines = append([]Line(nil), p.Lines...)
	return &cp, nil
}

func (m *mockRepo) listLocked(filter func(*Prescription) bool, limit, offset int) ([]*Prescription, int, error) {
	var items []*Prescription
	for _, p := range m.rxs {
		if filter(p) {
			cp := *p
			cp.Lines = append([]Line(nil), p.Lines...)
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	total := len(items)
	if offset >= len(items) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], total, nil
}

func (m *mockRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(func(p *Prescription) bool {
		return p.DoctorID != nil && *p.DoctorID == doctorID
	}, limit, offset)
}

func (m *mockRepo) ListAll(_ context.Context, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(func(*Prescription) bool { return true }, limit, offset)
}

func (m *mockRepo) Dispense(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rxs[id]
	if !ok {
		return ErrNotFound
	}
	if p.Dispensed {
		return ErrAlreadyDispensed
	}
	p.Dispensed = true
	p.DispensedAt = &at
	p.Status = StatusFulfilled
	return nil
}

// -- Mock Catalog --

type mockCatalog struct {
	drugs map[uuid.UUID]*drug.Drug
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{drugs: make(map[uuid.UUID]*drug.Drug)}
}

func (m *mockCatalog) add(name string, price float64) uuid.UUID {
	id := uuid.New()
	m.drugs[id] = &drug.Drug{ID: id, Name: name, Manufacturer: "Generic Pharma", Price: price}
	return id
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*drug.Drug, error) {
	result := make(map[uuid.UUID]*drug.Drug)
	for _, id := range ids {
		if d, ok := m.drugs[id]; ok {
			result[id] = d
		}
	}
	return result, nil
}

// -- Fixtures --

type fixture struct {
	svc     *Service
	repo    *mockRepo
	catalog *mockCatalog
	drugID  uuid.UUID
}

func newFixture(encode ArtifactEncoder) *fixture {
	repo := newMockRepo()
	catalog := newMockCatalog()
	drugID := catalog.add("Amoxicillin 500mg", 12.50)
	m := metrics.NewWith(prometheus.NewRegistry())
	svc := NewService(repo, catalog, encode, m, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, catalog: catalog, drugID: drugID}
}

func (f *fixture) validInput() CreateInput {
	return CreateInput{
		PatientName:  "Kofi Mensah",
		Instructions: "Take with food",
		Lines: []LineInput{
			{DrugID: f.drugID.String(), Quantity: 2, DosageText: "500mg twice daily"},
		},
	}
}

func doctorIdentity() auth.Identity {
	return auth.Identity{AccountID: uuid.New(), Role: auth.RoleDoctor}
}

func pharmacistIdentity() auth.Identity {
	return auth.Identity{AccountID: uuid.New(), Role: auth.RolePharmacist}
}

// -- Tests --

func TestCreate(t *testing.T) {
	f := newFixture(nil)
	doctor := doctorIdentity()

	p, err := f.svc.Create(context.Background(), &doctor.AccountID, f.validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != StatusActive {
		t.Errorf("status = %s, want active", p.Status)
	}
	if p.Dispensed || p.DispensedAt != nil {
		t.Error("new prescription must not be dispensed")
	}
	if p.ScanArtifact == "" {
		t.Error("scan artifact missing after creation")
	}
	if len(p.Lines) != 1 {
		t.Fatalf("lines = %d", len(p.Lines))
	}
	if p.Lines[0].Drug == nil || p.Lines[0].Drug.Name != "Amoxicillin 500mg" {
		t.Errorf("line not resolved: %+v", p.Lines[0])
	}
	if p.DoctorID == nil || *p.DoctorID != doctor.AccountID {
		t.Errorf("doctor id = %v", p.DoctorID)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	doctor := doctorIdentity()

	cases := []struct {
		name      string
		mutate    func(*CreateInput)
		wantField string
	}{
		{"missing patient name", func(in *CreateInput) { in.PatientName = " " }, "patient_name"},
		{"empty lines", func(in *CreateInput) { in.Lines = nil }, "lines"},
		{"zero quantity", func(in *CreateInput) { in.Lines[0].Quantity = 0 }, "lines[0].quantity"},
		{"missing dosage", func(in *CreateInput) { in.Lines[0].DosageText = "" }, "lines[0].dosage_text"},
		{"missing drug id", func(in *CreateInput) { in.Lines[0].DrugID = "" }, "lines[0].drug_id"},
		{"unknown drug", func(in *CreateInput) { in.Lines[0].DrugID = uuid.New().String() }, "lines[0].drug_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := f.validInput()
			tc.mutate(&in)
			_, err := f.svc.Create(ctx, &doctor.AccountID, in)

			var he *httperr.Error
			if !errors.As(err, &he) || he.Status != http.StatusBadRequest {
				t.Fatalf("err = %v, want 400", err)
			}
			found := false
			for _, fe := range he.Fields {
				if fe.Field == tc.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("field errors %v do not name %q", he.Fields, tc.wantField)
			}
		})
	}

	if len(f.repo.rxs) != 0 {
		t.Errorf("%d records persisted by invalid requests", len(f.repo.rxs))
	}
}

func TestCreateEncoderFailureKeepsRecord(t *testing.T) {
	calls := 0
	encode := func(id uuid.UUID) (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("renderer out of memory")
		}
		return "data:image/png;base64,ok-" + id.String(), nil
	}
	f := newFixture(encode)
	ctx := context.Background()
	doctor := doctorIdentity()

	_, err := f.svc.Create(ctx, &doctor.AccountID, f.validInput())
	var he *httperr.Error
	if !errors.As(err, &he) || he.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want 500", err)
	}
	if len(f.repo.rxs) != 1 {
		t.Fatalf("record count = %d, want 1 (record survives artifact failure)", len(f.repo.rxs))
	}

	var id uuid.UUID
	for rxID, p := range f.repo.rxs {
		id = rxID
		if p.ScanArtifact != "" {
			t.Error("artifact should be empty after failed attachment")
		}
	}

	// The next read repairs the artifact.
	p, err := f.svc.GetByID(ctx, auth.Identity{AccountID: doctor.AccountID, Role: auth.RoleDoctor}, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.ScanArtifact == "" {
		t.Error("artifact not repaired on read")
	}
	if f.repo.rxs[id].ScanArtifact == "" {
		t.Error("repaired artifact not persisted")
	}
}

func TestGetByIDForeignDoctorIsNotFound(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	owner := doctorIdentity()

	p, err := f.svc.Create(ctx, &owner.AccountID, f.validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Another doctor gets 404, not 403: existence stays hidden.
	other := doctorIdentity()
	_, err = f.svc.GetByID(ctx, other, p.ID)
	var he *httperr.Error
	if !errors.As(err, &he) || he.Status != http.StatusNotFound {
		t.Fatalf("foreign doctor err = %v, want 404", err)
	}

	// The owner and a pharmacist both see it.
	if _, err := f.svc.GetByID(ctx, owner, p.ID); err != nil {
		t.Errorf("owner err = %v", err)
	}
	if _, err := f.svc.GetByID(ctx, pharmacistIdentity(), p.ID); err != nil {
		t.Errorf("pharmacist err = %v", err)
	}
}

func TestListForDoctorNewestFirst(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	doctor := doctorIdentity()
	other := doctorIdentity()

	var created []uuid.UUID
	for i := 0; i < 3; i++ {
		p, err := f.svc.Create(ctx, &doctor.AccountID, f.validInput())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		created = append(created, p.ID)
	}
	if _, err := f.svc.Create(ctx, &other.AccountID, f.validInput()); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	items, total, err := f.svc.ListForDoctor(ctx, doctor.AccountID, 20, 0)
	if err != nil {
		t.Fatalf("ListForDoctor: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total = %d, len = %d, want 3", total, len(items))
	}
	for i, p := range items {
		if p.ID != created[len(created)-1-i] {
			t.Errorf("items[%d] = %s, want newest first", i, p.ID)
		}
		if len(p.Lines) != 1 || p.Lines[0].Drug == nil {
			t.Errorf("items[%d] lines not resolved", i)
		}
	}

	all, allTotal, err := f.svc.ListAll(ctx, 20, 0)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if allTotal != 4 || len(all) != 4 {
		t.Errorf("ListAll total = %d, len = %d, want 4", allTotal, len(all))
	}
}

func TestDispenseOneShot(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	doctor := doctorIdentity()

	created, err := f.svc.Create(ctx, &doctor.AccountID, f.validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p, err := f.svc.Dispense(ctx, created.ID)
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if !p.Dispensed || p.Status != StatusFulfilled || p.DispensedAt == nil {
		t.Errorf("after dispense: %+v", p)
	}

	_, err = f.svc.Dispense(ctx, created.ID)
	var he *httperr.Error
	if !errors.As(err, &he) || he.Status != http.StatusBadRequest || he.Code != httperr.CodeAlreadyDispensed {
		t.Fatalf("second dispense err = %v, want 400 already_dispensed", err)
	}

	_, err = f.svc.Dispense(ctx, uuid.New())
	if !errors.As(err, &he) || he.Status != http.StatusNotFound {
		t.Fatalf("unknown id err = %v, want 404", err)
	}
}

func TestConcurrentDispenseExactlyOneSuccess(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	doctor := doctorIdentity()

	created, err := f.svc.Create(ctx, &doctor.AccountID, f.validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Dispense(ctx, created.ID)
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var he *httperr.Error
		if errors.As(err, &he) && he.Code == httperr.CodeAlreadyDispensed {
			conflicts++
			continue
		}
		t.Errorf("unexpected error: %v", err)
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}
}

func TestScan(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	doctor := doctorIdentity()

	created, err := f.svc.Create(ctx, &doctor.AccountID, f.validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p, err := f.svc.Scan(ctx, pharmacistIdentity(), created.ID.String())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if p.ID != created.ID {
		t.Errorf("scanned %s, want %s", p.ID, created.ID)
	}

	var he *httperr.Error
	if _, err := f.svc.Scan(ctx, pharmacistIdentity(), "not-a-code"); !errors.As(err, &he) || he.Status != http.StatusBadRequest {
		t.Errorf("garbage payload err = %v, want 400", err)
	}
	if _, err := f.svc.Scan(ctx, pharmacistIdentity(), uuid.New().String()); !errors.As(err, &he) || he.Status != http.StatusNotFound {
		t.Errorf("unknown id err = %v, want 404", err)
	}
}
