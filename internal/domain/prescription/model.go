package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Prescription status lifecycle. Dispensing moves active -> fulfilled; the
// other states exist for back-office workflows.
const (
	StatusActive    = "active"
	StatusFulfilled = "fulfilled"
	StatusExpired   = "expired"
	StatusArchived  = "archived"
)

// Prescription maps to the prescriptions table. Lines live in the
// prescription_lines table, ordered by position. Invariants:
// at least one line, dispensed implies status fulfilled, DispensedAt set
// exactly when dispensed, ScanArtifact non-empty once creation completes.
type Prescription struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DoctorID     *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	PatientName  string     `db:"patient_name" json:"patient_name"`
	Instructions string     `db:"instructions" json:"instructions,omitempty"`
	ScanArtifact string     `db:"scan_artifact" json:"scan_artifact"`
	Status       string     `db:"status" json:"status"`
	Dispensed    bool       `db:"dispensed" json:"dispensed"`
	DispensedAt  *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	Lines        []Line     `json:"lines"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Line is one drug entry on a prescription. Drug holds the resolved catalog
// summary attached on every read; it is never persisted on the line itself.
type Line struct {
	DrugID     uuid.UUID `db:"drug_id" json:"drug_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	DosageText string    `db:"dosage_text" json:"dosage_text"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	Drug       *LineDrug `json:"drug,omitempty"`
}

// LineDrug is the catalog summary a resolved line carries for display.
type LineDrug struct {
	Name         string  `json:"name"`
	Manufacturer string  `json:"manufacturer"`
	Price        float64 `json:"price"`
}
