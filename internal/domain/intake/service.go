package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/events"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
)

// Errors returned by ConfirmIntake.
var (
	ErrOutOfStock      = errors.New("medicine is out of stock")
	ErrConfirmInFlight = errors.New("a confirmation for this dose is already being written")
)

// Service is the intake reconciler: it turns a confirmation (from the
// foreground dialog or the notification relay, both through the same entry
// point) into one immutable log entry and one stock decrement.
type Service struct {
	logs     LogRepository
	stocks   StockStore
	recorder events.Recorder
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	nowFn    func() time.Time

	mu         sync.Mutex
	inFlight   map[uuid.UUID]struct{}
	takenToday map[string]struct{} // medicine id + day, for instant UI gating
}

func NewService(logs LogRepository, stocks StockStore, recorder events.Recorder, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		logs:       logs,
		stocks:     stocks,
		recorder:   recorder,
		metrics:    metrics,
		logger:     logger,
		nowFn:      time.Now,
		inFlight:   make(map[uuid.UUID]struct{}),
		takenToday: make(map[string]struct{}),
	}
}

// SetNowFunc overrides the clock. Tests only.
func (s *Service) SetNowFunc(fn func() time.Time) { s.nowFn = fn }

// ConfirmIntake validates stock, writes the log entry, and decrements stock.
// The log insert and the stock decrement are deliberately not transactional:
// a crash between them leaves stock one too high relative to the log, which
// the source system tolerates. The decrement itself cannot undershoot zero.
func (s *Service) ConfirmIntake(ctx context.Context, patientID, medicineID uuid.UUID, scheduledTimeOfDay string, note *string) (*LogEntry, error) {
	s.mu.Lock()
	if _, busy := s.inFlight[medicineID]; busy {
		s.mu.Unlock()
		return nil, ErrConfirmInFlight
	}
	s.inFlight[medicineID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, medicineID)
		s.mu.Unlock()
	}()

	// Stock precondition applies on every path, including notification
	// confirms, so both entry points behave identically.
	stock, err := s.stocks.GetStock(ctx, medicineID)
	if err != nil {
		return nil, fmt.Errorf("look up stock: %w", err)
	}
	if stock == nil || *stock <= 0 {
		s.metrics.Inc(telemetry.CounterOutOfStock)
		return nil, ErrOutOfStock
	}

	now := s.nowFn()
	scheduledAt, err := CombineWithToday(scheduledTimeOfDay, now)
	if err != nil {
		return nil, fmt.Errorf("parse scheduled time: %w", err)
	}

	entry := &LogEntry{
		MedicineID:  medicineID,
		PatientID:   patientID,
		ScheduledAt: scheduledAt,
		TakenAt:     now,
		Status:      StatusTaken,
	}
	entry.Note = note
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert intake log: %w", err)
	}

	applied, err := s.stocks.DecrementStock(ctx, medicineID)
	if err != nil || !applied {
		// The log row is already committed; losing the decrement leaves
		// stock one too high, never negative. Surface in diagnostics only.
		s.logger.Warn().
			Err(err).
			Str("medicine_id", medicineID.String()).
			Bool("applied", applied).
			Msg("intake: stock decrement did not apply after log insert")
	}

	s.markTakenToday(medicineID, now)

	if err := s.recorder.Record(ctx, &events.ReminderEvent{
		PatientID:  patientID,
		MedicineID: medicineID,
		Type:       events.TypeIntakeConfirmed,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("intake: audit record failed")
	}

	return entry, nil
}

// ListToday returns today's log entries for a patient (local day boundaries).
func (s *Service) ListToday(ctx context.Context, patientID uuid.UUID) ([]LogEntry, error) {
	now := s.nowFn()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.logs.ListByPatientRange(ctx, patientID, from, from.AddDate(0, 0, 1))
}

// ListRange returns log entries for a patient between from (inclusive) and
// to (exclusive).
func (s *Service) ListRange(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]LogEntry, error) {
	return s.logs.ListByPatientRange(ctx, patientID, from, to)
}

// TakenToday reports whether this process has already confirmed the dose
// today. It is a UI hint only; the log table is the source of truth.
func (s *Service) TakenToday(medicineID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.takenToday[dayKey(medicineID, s.nowFn())]
	return ok
}

func (s *Service) markTakenToday(medicineID uuid.UUID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey(medicineID, now)
	s.takenToday[key] = struct{}{}
	// Drop markers from previous days so the map does not grow unbounded.
	prefix := now.Format("2006-01-02")
	for k := range s.takenToday {
		if !strings.HasPrefix(k, prefix) {
			delete(s.takenToday, k)
		}
	}
}

func dayKey(medicineID uuid.UUID, now time.Time) string {
	return now.Format("2006-01-02") + "/" + medicineID.String()
}

// CombineWithToday converts a wall-clock time of day (HH:MM or HH:MM:SS)
// into a full timestamp on now's date, in now's location.
func CombineWithToday(timeOfDay string, now time.Time) (time.Time, error) {
	parts := strings.Split(timeOfDay, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid time of day %q", timeOfDay)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time of day %q", timeOfDay)
		}
		nums[i] = n
	}
	if nums[0] < 0 || nums[0] > 23 || nums[1] < 0 || nums[1] > 59 || nums[2] < 0 || nums[2] > 59 {
		return time.Time{}, fmt.Errorf("time of day %q out of range", timeOfDay)
	}

	return time.Date(now.Year(), now.Month(), now.Day(), nums[0], nums[1], nums[2], 0, now.Location()), nil
}
