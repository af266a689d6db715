// Package events keeps a best-effort audit trail of reminder and
// confirmation activity. Recording failures are the caller's problem to log
// and swallow; nothing in the reconciliation path may block on this table.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types written by the reminder engine and the relay.
const (
	TypeAlertOpened     = "alert_opened"
	TypeIntakeConfirmed = "intake_confirmed"
	TypeAlertDismissed  = "alert_dismissed"
	TypeActionDropped   = "action_dropped"
)

// ReminderEvent maps to the reminder_event table.
type ReminderEvent struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	MedicineID uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Type       string    `db:"type" json:"type"`
	Detail     *string   `db:"detail" json:"detail,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Recorder persists reminder events.
type Recorder interface {
	Record(ctx context.Context, ev *ReminderEvent) error
}

type recorderPG struct{ pool *pgxpool.Pool }

func NewRecorderPG(pool *pgxpool.Pool) Recorder {
	return &recorderPG{pool: pool}
}

func (r *recorderPG) Record(ctx context.Context, ev *ReminderEvent) error {
	ev.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_event (id, patient_id, medicine_id, type, detail)
		VALUES ($1,$2,$3,$4,$5)`,
		ev.ID, ev.PatientID, ev.MedicineID, ev.Type, ev.Detail)
	return err
}

// NopRecorder discards events. Used in tests and when auditing is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *ReminderEvent) error { return nil }
