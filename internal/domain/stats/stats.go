// Package stats provides read-only adherence and platform reporting over
// the existing treatment and intake tables.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Adherence summarizes how well a patient kept to their schedule over a
// date range.
type Adherence struct {
	PatientID      uuid.UUID `json:"patient_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	ScheduledCount int       `json:"scheduled_count"`
	TakenCount     int       `json:"taken_count"`
	MissedCount    int       `json:"missed_count"`
	Rate           float64   `json:"rate"`
}

// PlatformStats are the admin dashboard aggregates.
type PlatformStats struct {
	Patients         int `json:"patients"`
	ActiveTreatments int `json:"active_treatments"`
	LogsToday        int `json:"logs_today"`
}

// Repository is the storage contract for the report queries.
type Repository interface {
	// DoseCount returns how many doses the patient is scheduled for per day.
	DoseCount(ctx context.Context, patientID uuid.UUID) (int, error)
	// TakenCount returns the taken logs in [from, to).
	TakenCount(ctx context.Context, patientID uuid.UUID, from, to time.Time) (int, error)
	Platform(ctx context.Context) (*PlatformStats, error)
}

type Service struct {
	repo  Repository
	nowFn func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFn: time.Now}
}

// SetNowFunc overrides the clock. Tests only.
func (s *Service) SetNowFunc(fn func() time.Time) { s.nowFn = fn }

// PatientAdherence computes the adherence rate over whole local days in
// [from, to]. The scheduled count is doses-per-day times the day count; a
// patient with no doses has a rate of zero over zero scheduled.
func (s *Service) PatientAdherence(ctx context.Context, patientID uuid.UUID, from, to time.Time) (*Adherence, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("to must not precede from")
	}

	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location()).AddDate(0, 0, 1)
	days := int(toDay.Sub(fromDay).Hours() / 24)

	perDay, err := s.repo.DoseCount(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("count doses: %w", err)
	}
	taken, err := s.repo.TakenCount(ctx, patientID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("count taken logs: %w", err)
	}

	scheduled := perDay * days
	missed := scheduled - taken
	if missed < 0 {
		missed = 0
	}
	rate := 0.0
	if scheduled > 0 {
		rate = float64(taken) / float64(scheduled)
		if rate > 1 {
			rate = 1
		}
	}

	return &Adherence{
		PatientID:      patientID,
		From:           fromDay,
		To:             toDay,
		ScheduledCount: scheduled,
		TakenCount:     taken,
		MissedCount:    missed,
		Rate:           rate,
	}, nil
}

// Platform returns the admin aggregates.
func (s *Service) Platform(ctx context.Context) (*PlatformStats, error) {
	return s.repo.Platform(ctx)
}
