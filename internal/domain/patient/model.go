// Package patient holds the patient identity records the rest of the
// system hangs off. Authentication itself lives at the gateway; this
// package only stores who a patient is.
package patient

import (
	"time"

	"github.com/google/uuid"
)

const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
