package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type logRepoPG struct{ pool *pgxpool.Pool }

func NewLogRepoPG(pool *pgxpool.Pool) LogRepository {
	return &logRepoPG{pool: pool}
}

func (r *logRepoPG) Create(ctx context.Context, e *LogEntry) error {
	e.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO intake_log (id, medicine_id, patient_id, scheduled_at, taken_at, status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.MedicineID, e.PatientID, e.ScheduledAt, e.TakenAt, e.Status, e.Note)
	return err
}

func (r *logRepoPG) ListByPatientRange(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, medicine_id, patient_id, scheduled_at, taken_at, status, note, created_at
		FROM intake_log
		WHERE patient_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at`, patientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.MedicineID, &e.PatientID, &e.ScheduledAt,
			&e.TakenAt, &e.Status, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
