package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LogRepository interface {
	Create(ctx context.Context, e *LogEntry) error
	ListByPatientRange(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]LogEntry, error)
}

// StockStore is the narrow slice of the medicine store the reconciler needs.
type StockStore interface {
	GetStock(ctx context.Context, medicineID uuid.UUID) (*int, error)
	DecrementStock(ctx context.Context, medicineID uuid.UUID) (bool, error)
}
