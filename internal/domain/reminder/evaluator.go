// Package reminder implements the in-process reminder engine: the schedule
// evaluator that decides which dose is due, the alert session holding the
// active alert, and the periodic poller driving both.
package reminder

import (
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/intake"
	"github.com/medtrack/medtrack/internal/domain/treatment"
)

// DefaultDueTolerance is the half-width of the due window: a dose is due
// when now is within this distance of its scheduled wall-clock time, on
// either side, boundaries inclusive.
const DefaultDueTolerance = 5 * time.Minute

// FindDueDose returns the first dose, in input order, whose scheduled time
// falls within tolerance of now and which has no taken log today. Doses
// whose schedule time does not parse are skipped. Returns nil when nothing
// is due.
func FindDueDose(doses []treatment.Dose, todayLogs []intake.LogEntry, now time.Time, tolerance time.Duration) *treatment.Dose {
	if tolerance <= 0 {
		tolerance = DefaultDueTolerance
	}

	taken := make(map[uuid.UUID]struct{}, len(todayLogs))
	for _, entry := range todayLogs {
		if entry.Status == intake.StatusTaken {
			taken[entry.MedicineID] = struct{}{}
		}
	}

	for i := range doses {
		dose := &doses[i]
		if _, done := taken[dose.MedicineID]; done {
			continue
		}
		scheduled, err := intake.CombineWithToday(dose.ScheduleTime, now)
		if err != nil {
			continue
		}
		diff := now.Sub(scheduled)
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return dose
		}
	}
	return nil
}
