package intake

import (
	"time"

	"github.com/google/uuid"
)

// Log entry statuses.
const (
	StatusTaken   = "taken"
	StatusPending = "pending"
)

// LogEntry maps to the intake_log table. Entries are append-only: nothing in
// this service updates or deletes a row once written, history views only
// read them.
type LogEntry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	MedicineID  uuid.UUID `db:"medicine_id" json:"medicine_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	TakenAt     time.Time `db:"taken_at" json:"taken_at"`
	Status      string    `db:"status" json:"status"`
	Note        *string   `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
