package reminder

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/intake"
	"github.com/medtrack/medtrack/internal/domain/treatment"
	"github.com/medtrack/medtrack/internal/platform/events"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
)

type mockDoseSource struct {
	mu    sync.Mutex
	doses map[uuid.UUID][]treatment.Dose
	err   error
	panic bool
}

func (m *mockDoseSource) ListDoses(_ context.Context, patientID uuid.UUID) ([]treatment.Dose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panic {
		panic("dose source exploded")
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.doses[patientID], nil
}

type mockLogSource struct {
	mu   sync.Mutex
	logs map[uuid.UUID][]intake.LogEntry
	err  error
}

func (m *mockLogSource) ListToday(_ context.Context, patientID uuid.UUID) ([]intake.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.logs[patientID], nil
}

type mockPresence struct {
	patients []uuid.UUID
}

func (m *mockPresence) ConnectedPatients() []uuid.UUID { return m.patients }

type pollerFixture struct {
	poller   *Poller
	engine   *Engine
	doses    *mockDoseSource
	logs     *mockLogSource
	presence *mockPresence
	relay    *mockRelay
	metrics  *telemetry.Metrics
}

func newPollerFixture(interval time.Duration) *pollerFixture {
	logger := zerolog.New(os.Stderr)
	metrics := telemetry.NewMetrics("test")
	mr := &mockRelay{}
	engine := NewEngine(mr, &mockSink{}, &mockConfirmer{}, metrics, events.NopRecorder{}, logger, SessionManagerConfig{SoundCueInterval: time.Hour})
	doses := &mockDoseSource{doses: make(map[uuid.UUID][]treatment.Dose)}
	logs := &mockLogSource{logs: make(map[uuid.UUID][]intake.LogEntry)}
	presence := &mockPresence{}
	poller := NewPoller(engine, doses, logs, presence, metrics, logger, interval, 5*time.Minute)
	return &pollerFixture{poller: poller, engine: engine, doses: doses, logs: logs, presence: presence, relay: mr, metrics: metrics}
}

func TestTick_OpensSessionForDueDose(t *testing.T) {
	f := newPollerFixture(time.Hour)
	patientID := uuid.New()
	f.presence.patients = []uuid.UUID{patientID}

	d := dose("09:00")
	d.PatientID = patientID
	f.doses.doses[patientID] = []treatment.Dose{d}

	f.poller.SetNowFunc(func() time.Time {
		return time.Date(2026, 3, 14, 9, 2, 0, 0, time.Local)
	})
	f.poller.Tick(context.Background())

	session := f.engine.ManagerFor(patientID).Current()
	if session == nil {
		t.Fatal("expected an open session for the due dose")
	}
	if session.Dose.MedicineID != d.MedicineID {
		t.Error("expected the due dose in the session")
	}
	if got := f.metrics.Counter(telemetry.CounterAlertsOpened); got != 1 {
		t.Errorf("expected 1 alert opened, got %d", got)
	}
}

func TestTick_DoesNotStackAlerts(t *testing.T) {
	f := newPollerFixture(time.Hour)
	patientID := uuid.New()
	f.presence.patients = []uuid.UUID{patientID}

	d := dose("09:00")
	d.PatientID = patientID
	other := dose("09:01")
	other.PatientID = patientID
	f.doses.doses[patientID] = []treatment.Dose{d, other}

	f.poller.SetNowFunc(func() time.Time {
		return time.Date(2026, 3, 14, 9, 2, 0, 0, time.Local)
	})
	f.poller.Tick(context.Background())
	f.poller.Tick(context.Background())
	f.poller.Tick(context.Background())

	if got := f.metrics.Counter(telemetry.CounterAlertsOpened); got != 1 {
		t.Fatalf("expected exactly 1 alert across repeated ticks, got %d", got)
	}
}

func TestTick_SkipsTakenDose(t *testing.T) {
	f := newPollerFixture(time.Hour)
	patientID := uuid.New()
	f.presence.patients = []uuid.UUID{patientID}

	d := dose("09:00")
	d.PatientID = patientID
	f.doses.doses[patientID] = []treatment.Dose{d}
	f.logs.logs[patientID] = []intake.LogEntry{
		{MedicineID: d.MedicineID, Status: intake.StatusTaken},
	}

	f.poller.SetNowFunc(func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	})
	f.poller.Tick(context.Background())

	if f.engine.ManagerFor(patientID).Current() != nil {
		t.Fatal("expected no session for an already-taken dose")
	}
}

func TestTick_FetchFailureSkipsPatientNotLoop(t *testing.T) {
	f := newPollerFixture(time.Hour)
	healthy := uuid.New()
	f.presence.patients = []uuid.UUID{healthy}

	d := dose("09:00")
	d.PatientID = healthy
	f.doses.doses[healthy] = []treatment.Dose{d}
	f.doses.err = errors.New("db down")

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	f.poller.SetNowFunc(func() time.Time { return now })

	f.poller.Tick(context.Background())
	if got := f.metrics.Counter(telemetry.CounterPollFailures); got != 1 {
		t.Fatalf("expected 1 failure counted, got %d", got)
	}
	if f.engine.ManagerFor(healthy).Current() != nil {
		t.Fatal("expected no session while the fetch fails")
	}

	// Next tick recovers once the store is back.
	f.doses.mu.Lock()
	f.doses.err = nil
	f.doses.mu.Unlock()
	f.poller.Tick(context.Background())
	if f.engine.ManagerFor(healthy).Current() == nil {
		t.Fatal("expected the loop to recover on the next tick")
	}
}

func TestTick_PanicIsContained(t *testing.T) {
	f := newPollerFixture(time.Hour)
	patientID := uuid.New()
	f.presence.patients = []uuid.UUID{patientID}
	f.doses.panic = true

	// Must not propagate.
	f.poller.Tick(context.Background())

	if got := f.metrics.Counter(telemetry.CounterPollFailures); got != 1 {
		t.Fatalf("expected panic counted as failure, got %d", got)
	}

	f.doses.mu.Lock()
	f.doses.panic = false
	f.doses.mu.Unlock()
	d := dose("09:00")
	d.PatientID = patientID
	f.doses.doses[patientID] = []treatment.Dose{d}
	f.poller.SetNowFunc(func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	})
	f.poller.Tick(context.Background())
	if f.engine.ManagerFor(patientID).Current() == nil {
		t.Fatal("expected ticks to keep working after a panic")
	}
}

func TestTick_OnlyPolledForConnectedPatients(t *testing.T) {
	f := newPollerFixture(time.Hour)
	offline := uuid.New()

	d := dose("09:00")
	d.PatientID = offline
	f.doses.doses[offline] = []treatment.Dose{d}
	// Presence is empty: nobody has a foreground context.

	f.poller.SetNowFunc(func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	})
	f.poller.Tick(context.Background())

	if f.engine.ManagerFor(offline).Current() != nil {
		t.Fatal("expected no alert for a patient with no foreground context")
	}
}

func TestPoller_StartStop(t *testing.T) {
	f := newPollerFixture(5 * time.Millisecond)

	f.poller.Start(context.Background())
	f.poller.Start(context.Background()) // idempotent

	deadline := time.Now().Add(time.Second)
	for f.metrics.Counter(telemetry.CounterPollTicks) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.metrics.Counter(telemetry.CounterPollTicks) < 2 {
		t.Fatal("expected the loop to tick repeatedly")
	}

	f.poller.Stop()
	f.poller.Stop() // idempotent

	settled := f.metrics.Counter(telemetry.CounterPollTicks)
	time.Sleep(30 * time.Millisecond)
	if got := f.metrics.Counter(telemetry.CounterPollTicks); got != settled {
		t.Fatalf("expected no ticks after stop, got %d more", got-settled)
	}
}
