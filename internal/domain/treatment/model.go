package treatment

import (
	"time"

	"github.com/google/uuid"
)

// Treatment maps to the treatment table. A treatment groups the medicines a
// patient takes for one course of care.
type Treatment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	StartDate   *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate     *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Medicine maps to the medicine table. One row exists per scheduled time
// slot, so the medicine id doubles as the dose id in the reminder engine.
type Medicine struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TreatmentID  uuid.UUID `db:"treatment_id" json:"treatment_id"`
	Name         string    `db:"name" json:"name"`
	Dosage       string    `db:"dosage" json:"dosage"`
	Frequency    string    `db:"frequency" json:"frequency"`
	Instructions *string   `db:"instructions" json:"instructions,omitempty"`
	Stock        *int      `db:"stock" json:"stock,omitempty"`
	ScheduleTime string    `db:"schedule_time" json:"schedule_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Dose is the reminder engine's view of a Medicine: one scheduled daily
// administration at a wall-clock time of day.
type Dose struct {
	MedicineID   uuid.UUID `json:"medicine_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	Instructions *string   `json:"instructions,omitempty"`
	Stock        *int      `json:"stock,omitempty"`
	ScheduleTime string    `json:"schedule_time"`
}
