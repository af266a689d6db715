package treatment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Treatment Repository ===========

type treatmentRepoPG struct{ pool *pgxpool.Pool }

func NewTreatmentRepoPG(pool *pgxpool.Pool) TreatmentRepository {
	return &treatmentRepoPG{pool: pool}
}

const treatmentCols = `id, patient_id, name, description, start_date, end_date, created_at, updated_at`

func (r *treatmentRepoPG) scan(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.PatientID, &t.Name, &t.Description,
		&t.StartDate, &t.EndDate, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	t.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO treatment (id, patient_id, name, description, start_date, end_date)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.PatientID, t.Name, t.Description, t.StartDate, t.EndDate)
	return err
}

func (r *treatmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+treatmentCols+` FROM treatment WHERE id = $1`, id))
}

func (r *treatmentRepoPG) Update(ctx context.Context, t *Treatment) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE treatment SET name=$2, description=$3, start_date=$4, end_date=$5, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.StartDate, t.EndDate)
	return err
}

func (r *treatmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM treatment WHERE id = $1`, id)
	return err
}

func (r *treatmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Treatment, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM treatment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+treatmentCols+` FROM treatment
		WHERE patient_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Treatment
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRepoPG{pool: pool}
}

const medicineCols = `id, treatment_id, name, dosage, frequency, instructions, stock, schedule_time, created_at, updated_at`

func (r *medicineRepoPG) scan(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.TreatmentID, &m.Name, &m.Dosage, &m.Frequency,
		&m.Instructions, &m.Stock, &m.ScheduleTime, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO medicine (id, treatment_id, name, dosage, frequency, instructions, stock, schedule_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.TreatmentID, m.Name, m.Dosage, m.Frequency, m.Instructions, m.Stock, m.ScheduleTime)
	return err
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+medicineCols+` FROM medicine WHERE id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE medicine SET name=$2, dosage=$3, frequency=$4, instructions=$5, stock=$6, schedule_time=$7, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.Dosage, m.Frequency, m.Instructions, m.Stock, m.ScheduleTime)
	return err
}

func (r *medicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM medicine WHERE id = $1`, id)
	return err
}

func (r *medicineRepoPG) ListByTreatment(ctx context.Context, treatmentID uuid.UUID) ([]*Medicine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+medicineCols+` FROM medicine
		WHERE treatment_id = $1
		ORDER BY created_at`, treatmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *medicineRepoPG) ListDosesByPatient(ctx context.Context, patientID uuid.UUID) ([]Dose, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, t.patient_id, m.name, m.dosage, m.frequency, m.instructions, m.stock, m.schedule_time
		FROM medicine m
		JOIN treatment t ON t.id = m.treatment_id
		WHERE t.patient_id = $1
		ORDER BY m.created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doses []Dose
	for rows.Next() {
		var d Dose
		if err := rows.Scan(&d.MedicineID, &d.PatientID, &d.Name, &d.Dosage,
			&d.Frequency, &d.Instructions, &d.Stock, &d.ScheduleTime); err != nil {
			return nil, err
		}
		doses = append(doses, d)
	}
	return doses, rows.Err()
}

func (r *medicineRepoPG) GetStock(ctx context.Context, id uuid.UUID) (*int, error) {
	var stock *int
	err := r.pool.QueryRow(ctx, `SELECT stock FROM medicine WHERE id = $1`, id).Scan(&stock)
	return stock, err
}

func (r *medicineRepoPG) DecrementStock(ctx context.Context, id uuid.UUID) (bool, error) {
	// The stock > 0 guard keeps the count at or above zero even when two
	// confirms race at the storage layer.
	tag, err := r.pool.Exec(ctx,
		`UPDATE medicine SET stock = stock - 1, updated_at = NOW() WHERE id = $1 AND stock > 0`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
