package treatment

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

type Service struct {
	treatments TreatmentRepository
	medicines  MedicineRepository
}

func NewService(treatments TreatmentRepository, medicines MedicineRepository) *Service {
	return &Service{treatments: treatments, medicines: medicines}
}

// -- Treatment --

func (s *Service) CreateTreatment(ctx context.Context, t *Treatment) error {
	if t.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return fmt.Errorf("end_date must not precede start_date")
	}
	return s.treatments.Create(ctx, t)
}

func (s *Service) GetTreatment(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	return s.treatments.GetByID(ctx, id)
}

func (s *Service) UpdateTreatment(ctx context.Context, t *Treatment) error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.treatments.Update(ctx, t)
}

func (s *Service) DeleteTreatment(ctx context.Context, id uuid.UUID) error {
	return s.treatments.Delete(ctx, id)
}

func (s *Service) ListTreatments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Treatment, int, error) {
	return s.treatments.ListByPatient(ctx, patientID, limit, offset)
}

// -- Medicine --

var scheduleTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	return s.medicines.Create(ctx, m)
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	return s.medicines.Update(ctx, m)
}

func (s *Service) DeleteMedicine(ctx context.Context, id uuid.UUID) error {
	return s.medicines.Delete(ctx, id)
}

func (s *Service) ListMedicines(ctx context.Context, treatmentID uuid.UUID) ([]*Medicine, error) {
	return s.medicines.ListByTreatment(ctx, treatmentID)
}

// ListDoses returns every scheduled dose for a patient in creation order,
// which is the order the reminder engine evaluates them.
func (s *Service) ListDoses(ctx context.Context, patientID uuid.UUID) ([]Dose, error) {
	return s.medicines.ListDosesByPatient(ctx, patientID)
}

func (s *Service) GetStock(ctx context.Context, medicineID uuid.UUID) (*int, error) {
	return s.medicines.GetStock(ctx, medicineID)
}

func (s *Service) DecrementStock(ctx context.Context, medicineID uuid.UUID) (bool, error) {
	return s.medicines.DecrementStock(ctx, medicineID)
}

func validateMedicine(m *Medicine) error {
	if m.TreatmentID == uuid.Nil {
		return fmt.Errorf("treatment_id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Dosage == "" {
		return fmt.Errorf("dosage is required")
	}
	if !scheduleTimeRe.MatchString(m.ScheduleTime) {
		return fmt.Errorf("schedule_time must be HH:MM or HH:MM:SS, got %q", m.ScheduleTime)
	}
	if m.Stock != nil && *m.Stock < 0 {
		return fmt.Errorf("stock must not be negative")
	}
	return nil
}
