package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) DoseCount(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM medicine m
		JOIN treatment t ON t.id = m.treatment_id
		WHERE t.patient_id = $1`, patientID).Scan(&n)
	return n, err
}

func (r *repoPG) TakenCount(ctx context.Context, patientID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM intake_log
		WHERE patient_id = $1
		  AND status = 'taken'
		  AND scheduled_at >= $2
		  AND scheduled_at < $3`, patientID, from, to).Scan(&n)
	return n, err
}

func (r *repoPG) Platform(ctx context.Context) (*PlatformStats, error) {
	var s PlatformStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patient),
			(SELECT COUNT(*) FROM treatment
			 WHERE (start_date IS NULL OR start_date <= NOW())
			   AND (end_date IS NULL OR end_date >= NOW())),
			(SELECT COUNT(*) FROM intake_log WHERE created_at >= date_trunc('day', NOW()))`).
		Scan(&s.Patients, &s.ActiveTreatments, &s.LogsToday)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
