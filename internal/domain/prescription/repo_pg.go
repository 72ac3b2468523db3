package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Khr29/MediScanQR/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const rxCols = `id, doctor_id, patient_name, instructions, scan_artifact,
	status, dispensed, dispensed_at, created_at, updated_at`

func scanRx(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.DoctorID, &p.PatientName, &p.Instructions, &p.ScanArtifact,
		&p.Status, &p.Dispensed, &p.DispensedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.Status = StatusActive
	p.Dispensed = false
	p.ScanArtifact = ""

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO prescriptions (id, doctor_id, patient_name, instructions, scan_artifact, status, dispensed)
		VALUES ($1, $2, $3, $4, '', $5, FALSE)
		RETURNING created_at, updated_at`,
		p.ID, p.DoctorID, p.PatientName, p.Instructions, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}

	for i, line := range p.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO prescription_lines (id, prescription_id, position, drug_id, quantity, dosage_text, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), p.ID, i, line.DrugID, line.Quantity, line.DosageText, line.Notes)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *repoPG) AttachArtifact(ctx context.Context, id uuid.UUID, artifact string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE prescriptions SET scan_artifact = $2, updated_at = NOW()
		WHERE id = $1`, id, artifact)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) loadLines(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Line, error) {
	result := make(map[uuid.UUID][]Line, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT prescription_id, drug_id, quantity, dosage_text, notes
		FROM prescription_lines
		WHERE prescription_id = ANY($1)
		ORDER BY prescription_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rxID uuid.UUID
		var line Line
		if err := rows.Scan(&rxID, &line.DrugID, &line.Quantity, &line.DosageText, &line.Notes); err != nil {
			return nil, err
		}
		result[rxID] = append(result[rxID], line)
	}
	return result, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanRx(r.pool.QueryRow(ctx,
		`SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.loadLines(ctx, []uuid.UUID{p.ID})
	if err != nil {
		return nil, err
	}
	p.Lines = lines[p.ID]
	return p, nil
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Prescription, int, error) {
	countArgs := args
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM prescriptions `+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM prescriptions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		rxCols, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Prescription
	var ids []uuid.UUID
	for rows.Next() {
		p, err := scanRx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		p.Lines = lines[p.ID]
	}
	return items, total, nil
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.list(ctx, `WHERE doctor_id = $1`, []interface{}{doctorID}, limit, offset)
}

func (r *repoPG) ListAll(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return r.list(ctx, ``, nil, limit, offset)
}

func (r *repoPG) Dispense(ctx context.Context, id uuid.UUID, at time.Time) error {
	// Conditional update: under concurrent dispense attempts exactly one
	// caller flips the row, everyone else affects zero rows.
	tag, err := r.pool.Exec(ctx, `
		UPDATE prescriptions
		SET dispensed = TRUE, dispensed_at = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND dispensed = FALSE`,
		id, at, StatusFulfilled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the id is unknown or the transition already happened.
	var dispensed bool
	err = r.pool.QueryRow(ctx,
		`SELECT dispensed FROM prescriptions WHERE id = $1`, id).Scan(&dispensed)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		return err
	}
	if dispensed {
		return ErrAlreadyDispensed
	}
	// Row exists, not dispensed, yet the update missed it. Should not happen.
	return fmt.Errorf("dispense of %s affected no rows", id)
}
