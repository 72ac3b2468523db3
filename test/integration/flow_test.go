package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Khr29/MediScanQR/internal/domain/account"
	"github.com/Khr29/MediScanQR/internal/domain/drug"
	"github.com/Khr29/MediScanQR/internal/domain/prescription"
	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
	"github.com/Khr29/MediScanQR/internal/platform/metrics"
)

type services struct {
	accounts      *account.Service
	drugs         *drug.Service
	prescriptions *prescription.Service
}

func newServices() *services {
	drugRepo := drug.NewRepoPG(globalPool)
	m := metrics.NewWith(prometheus.NewRegistry())
	return &services{
		accounts: account.NewService(account.NewRepoPG(globalPool)),
		drugs:    drug.NewService(drugRepo),
		prescriptions: prescription.NewService(
			prescription.NewRepoPG(globalPool), drugRepo, nil, m, zerolog.Nop()),
	}
}

func registerDoctor(t *testing.T, ctx context.Context, svc *services, email string) auth.Identity {
	t.Helper()
	acct, err := svc.accounts.Register(ctx, account.RegisterInput{
		Name:     "Dr. Ama Owusu",
		Email:    email,
		Password: "correct horse battery",
		Role:     "doctor",
	})
	if err != nil {
		t.Fatalf("register doctor: %v", err)
	}
	return auth.Identity{AccountID: acct.ID, Role: acct.Role}
}

func addDrug(t *testing.T, ctx context.Context, svc *services, name string) *drug.Drug {
	t.Helper()
	d, err := svc.drugs.Add(ctx, drug.AddInput{
		Name:         name,
		Manufacturer: "Generic Pharma",
		Price:        12.50,
	})
	if err != nil {
		t.Fatalf("add drug %q: %v", name, err)
	}
	return d
}

func httpStatus(err error) int {
	var he *httperr.Error
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

func TestDuplicateEmailIndex(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svc := newServices()

	registerDoctor(t, ctx, svc, "ama@example.com")

	// The lower(email) unique index rejects the re-registration regardless
	// of casing.
	_, err := svc.accounts.Register(ctx, account.RegisterInput{
		Name:     "Someone Else",
		Email:    "AMA@Example.com",
		Password: "another password",
		Role:     "patient",
	})
	if httpStatus(err) != http.StatusConflict {
		t.Errorf("duplicate email: got %v, want 409", err)
	}
}

func TestDuplicateDrugNameIndex(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svc := newServices()

	addDrug(t, ctx, svc, "Amoxicillin 500mg")

	_, err := svc.drugs.Add(ctx, drug.AddInput{
		Name:         "AMOXICILLIN 500MG",
		Manufacturer: "Other Labs",
		Price:        9.99,
	})
	if httpStatus(err) != http.StatusConflict {
		t.Errorf("duplicate drug name: got %v, want 409", err)
	}
}

func TestPrescriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svc := newServices()

	doctor := registerDoctor(t, ctx, svc, "doctor@example.com")
	d := addDrug(t, ctx, svc, "Ibuprofen 200mg")

	created, err := svc.prescriptions.Create(ctx, &doctor.AccountID, prescription.CreateInput{
		PatientName: "Kofi Mensah",
		Lines: []prescription.LineInput{
			{DrugID: d.ID.String(), Quantity: 2, DosageText: "200mg as needed"},
		},
	})
	if err != nil {
		t.Fatalf("create prescription: %v", err)
	}
	if created.ScanArtifact == "" {
		t.Error("created prescription has no scan artifact")
	}
	if created.Status != prescription.StatusActive {
		t.Errorf("status = %q, want %q", created.Status, prescription.StatusActive)
	}

	// Read back through the repo round trip: lines and catalog summaries
	// survive persistence.
	got, err := svc.prescriptions.GetByID(ctx, doctor, created.ID)
	if err != nil {
		t.Fatalf("get prescription: %v", err)
	}
	if len(got.Lines) != 1 || got.Lines[0].Drug == nil || got.Lines[0].Drug.Name != d.Name {
		t.Errorf("lines = %+v", got.Lines)
	}

	// Another doctor gets NotFound, not Forbidden.
	other := registerDoctor(t, ctx, svc, "other@example.com")
	if _, err := svc.prescriptions.GetByID(ctx, other, created.ID); httpStatus(err) != http.StatusNotFound {
		t.Errorf("foreign doctor read: got %v, want 404", err)
	}

	dispensed, err := svc.prescriptions.Dispense(ctx, created.ID)
	if err != nil {
		t.Fatalf("dispense: %v", err)
	}
	if !dispensed.Dispensed || dispensed.DispensedAt == nil || dispensed.Status != prescription.StatusFulfilled {
		t.Errorf("after dispense: %+v", dispensed)
	}

	if _, err := svc.prescriptions.Dispense(ctx, created.ID); httpStatus(err) != http.StatusBadRequest {
		t.Errorf("second dispense: got %v, want 400", err)
	}
}

func TestConcurrentDispenseAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svc := newServices()

	doctor := registerDoctor(t, ctx, svc, "doctor@example.com")
	d := addDrug(t, ctx, svc, "Zinc Sulfate")

	created, err := svc.prescriptions.Create(ctx, &doctor.AccountID, prescription.CreateInput{
		PatientName: "Abena Asante",
		Lines: []prescription.LineInput{
			{DrugID: d.ID.String(), Quantity: 1, DosageText: "once daily"},
		},
	})
	if err != nil {
		t.Fatalf("create prescription: %v", err)
	}

	// The conditional UPDATE lets exactly one of the racing attempts win.
	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.prescriptions.Dispense(ctx, created.ID)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case httpStatus(err) == http.StatusBadRequest:
			conflicts++
		default:
			t.Errorf("unexpected dispense error: %v", err)
		}
	}
	if wins != 1 || conflicts != attempts-1 {
		t.Errorf("wins = %d, conflicts = %d, want 1 and %d", wins, conflicts, attempts-1)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svc := newServices()

	doctor := registerDoctor(t, ctx, svc, "doctor@example.com")
	d := addDrug(t, ctx, svc, "Paracetamol 500mg")

	var ids []string
	for _, patient := range []string{"First Patient", "Second Patient", "Third Patient"} {
		p, err := svc.prescriptions.Create(ctx, &doctor.AccountID, prescription.CreateInput{
			PatientName: patient,
			Lines: []prescription.LineInput{
				{DrugID: d.ID.String(), Quantity: 1, DosageText: "500mg"},
			},
		})
		if err != nil {
			t.Fatalf("create for %q: %v", patient, err)
		}
		ids = append(ids, p.ID.String())
	}

	items, total, err := svc.prescriptions.ListForDoctor(ctx, doctor.AccountID, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total = %d, len = %d", total, len(items))
	}
	for i, p := range items {
		if want := ids[len(ids)-1-i]; p.ID.String() != want {
			t.Errorf("items[%d] = %s, want %s", i, p.ID, want)
		}
	}
}
