package treatment

import (
	"context"

	"github.com/google/uuid"
)

type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error)
	Update(ctx context.Context, t *Treatment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Treatment, int, error)
}

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByTreatment(ctx context.Context, treatmentID uuid.UUID) ([]*Medicine, error)
	// ListDosesByPatient joins treatments and medicines for a patient. The
	// result order (creation order) is the evaluation order of the reminder
	// engine, so it must be stable.
	ListDosesByPatient(ctx context.Context, patientID uuid.UUID) ([]Dose, error)
	// GetStock returns the remaining stock for a medicine; nil means the
	// patient never recorded a count.
	GetStock(ctx context.Context, id uuid.UUID) (*int, error)
	// DecrementStock atomically decrements stock by one, guarded so the
	// count never drops below zero. Returns false when no row qualified
	// (missing medicine, nil stock, or stock already at zero).
	DecrementStock(ctx context.Context, id uuid.UUID) (bool, error)
}
