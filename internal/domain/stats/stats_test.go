package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	dosesPerDay int
	taken       int
	platform    PlatformStats
}

func (m *mockRepo) DoseCount(context.Context, uuid.UUID) (int, error) {
	return m.dosesPerDay, nil
}

func (m *mockRepo) TakenCount(context.Context, uuid.UUID, time.Time, time.Time) (int, error) {
	return m.taken, nil
}

func (m *mockRepo) Platform(context.Context) (*PlatformStats, error) {
	p := m.platform
	return &p, nil
}

func TestPatientAdherence_Rate(t *testing.T) {
	svc := NewService(&mockRepo{dosesPerDay: 2, taken: 10})

	from := time.Date(2026, 3, 8, 0, 0, 0, 0, time.Local)
	to := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local) // 7 whole days

	report, err := svc.PatientAdherence(context.Background(), uuid.New(), from, to)
	if err != nil {
		t.Fatalf("adherence: %v", err)
	}
	if report.ScheduledCount != 14 {
		t.Errorf("expected 14 scheduled, got %d", report.ScheduledCount)
	}
	if report.TakenCount != 10 {
		t.Errorf("expected 10 taken, got %d", report.TakenCount)
	}
	if report.MissedCount != 4 {
		t.Errorf("expected 4 missed, got %d", report.MissedCount)
	}
	wantRate := 10.0 / 14.0
	if diff := report.Rate - wantRate; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected rate %.4f, got %.4f", wantRate, report.Rate)
	}
}

func TestPatientAdherence_NoDoses(t *testing.T) {
	svc := NewService(&mockRepo{dosesPerDay: 0, taken: 0})

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	report, err := svc.PatientAdherence(context.Background(), uuid.New(), day, day)
	if err != nil {
		t.Fatalf("adherence: %v", err)
	}
	if report.ScheduledCount != 0 || report.Rate != 0 {
		t.Errorf("expected zero scheduled and zero rate, got %d / %.2f", report.ScheduledCount, report.Rate)
	}
}

func TestPatientAdherence_RateCappedAtOne(t *testing.T) {
	// More taken logs than scheduled slots (restock edge, manual entries).
	svc := NewService(&mockRepo{dosesPerDay: 1, taken: 5})

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	report, err := svc.PatientAdherence(context.Background(), uuid.New(), day, day)
	if err != nil {
		t.Fatalf("adherence: %v", err)
	}
	if report.Rate != 1 {
		t.Errorf("expected rate capped at 1, got %.2f", report.Rate)
	}
	if report.MissedCount != 0 {
		t.Errorf("expected missed floored at 0, got %d", report.MissedCount)
	}
}

func TestPatientAdherence_RejectsInvertedRange(t *testing.T) {
	svc := NewService(&mockRepo{})

	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, -1)
	if _, err := svc.PatientAdherence(context.Background(), uuid.New(), from, to); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
