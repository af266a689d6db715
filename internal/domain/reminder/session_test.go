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
	"github.com/medtrack/medtrack/internal/platform/relay"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
)

type mockRelay struct {
	mu      sync.Mutex
	started []relay.DoseSnapshot
	stopped []uuid.UUID
	failing bool
}

func (m *mockRelay) StartAlarm(dose relay.DoseSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("relay unavailable")
	}
	m.started = append(m.started, dose)
	return nil
}

func (m *mockRelay) StopAlarm(doseID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, doseID)
}

func (m *mockRelay) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stopped)
}

type mockSink struct {
	mu   sync.Mutex
	cues int
}

func (m *mockSink) PlayCue(_, _ uuid.UUID) {
	m.mu.Lock()
	m.cues++
	m.mu.Unlock()
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cues
}

type mockConfirmer struct {
	mu      sync.Mutex
	calls   int
	err     error
	entries []intake.LogEntry
}

func (m *mockConfirmer) ConfirmIntake(_ context.Context, patientID, medicineID uuid.UUID, scheduledTimeOfDay string, note *string) (*intake.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	entry := intake.LogEntry{
		ID:         uuid.New(),
		MedicineID: medicineID,
		PatientID:  patientID,
		Status:     intake.StatusTaken,
		Note:       note,
	}
	m.entries = append(m.entries, entry)
	return &entry, nil
}

func sessionDose() treatment.Dose {
	return treatment.Dose{
		MedicineID:   uuid.New(),
		PatientID:    uuid.New(),
		Name:         "Metformin",
		Dosage:       "850mg",
		Frequency:    "2x daily",
		ScheduleTime: "08:00",
	}
}

func newTestManager(cfg SessionManagerConfig) (*SessionManager, *mockRelay, *mockSink, *mockConfirmer) {
	mr := &mockRelay{}
	sink := &mockSink{}
	conf := &mockConfirmer{}
	mgr := NewSessionManager(uuid.New(), mr, sink, conf, telemetry.NewMetrics("test"), events.NopRecorder{}, zerolog.New(os.Stderr), cfg)
	return mgr, mr, sink, conf
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []events.ReminderEvent
}

func (r *recordingRecorder) Record(_ context.Context, ev *events.ReminderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return nil
}

func (r *recordingRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestSessionManager_AuditTrail(t *testing.T) {
	rec := &recordingRecorder{}
	mgr := NewSessionManager(uuid.New(), &mockRelay{}, &mockSink{}, &mockConfirmer{},
		telemetry.NewMetrics("test"), rec, zerolog.New(os.Stderr),
		SessionManagerConfig{SoundCueInterval: time.Hour})

	if err := mgr.Open(sessionDose()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := mgr.Dismiss(true); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	got := rec.types()
	if len(got) != 2 || got[0] != events.TypeAlertOpened || got[1] != events.TypeAlertDismissed {
		t.Fatalf("expected [alert_opened alert_dismissed], got %v", got)
	}
}

func TestSessionManager_AtMostOneOpen(t *testing.T) {
	mgr, mr, _, _ := newTestManager(SessionManagerConfig{SoundCueInterval: time.Hour})

	first := sessionDose()
	if err := mgr.Open(first); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := mgr.Open(sessionDose()); !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("expected ErrSessionOpen, got %v", err)
	}

	current := mgr.Current()
	if current == nil || current.Dose.MedicineID != first.MedicineID {
		t.Fatal("expected the first session to remain active")
	}
	mr.mu.Lock()
	started := len(mr.started)
	mr.mu.Unlock()
	if started != 1 {
		t.Fatalf("expected 1 relay start, got %d", started)
	}
}

func TestSessionManager_OpenStartsSoundLoop(t *testing.T) {
	mgr, _, sink, _ := newTestManager(SessionManagerConfig{SoundCueInterval: 5 * time.Millisecond})

	if err := mgr.Open(sessionDose()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer mgr.Dismiss(true)

	deadline := time.Now().Add(time.Second)
	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() < 2 {
		t.Fatal("expected repeated sound cues while the session is open")
	}
	if s := mgr.Current(); s == nil || !s.Sounding {
		t.Fatal("expected session to report sounding")
	}
}

func TestSessionManager_ConfirmClosesSession(t *testing.T) {
	mgr, mr, _, conf := newTestManager(SessionManagerConfig{SoundCueInterval: time.Hour})

	dose := sessionDose()
	if err := mgr.Open(dose); err != nil {
		t.Fatalf("open: %v", err)
	}

	entry, err := mgr.Confirm(context.Background(), nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if entry.MedicineID != dose.MedicineID {
		t.Error("expected log entry for the session's dose")
	}
	if mgr.Current() != nil {
		t.Error("expected session closed after confirm")
	}
	if mr.stopCount() != 1 {
		t.Errorf("expected 1 relay stop, got %d", mr.stopCount())
	}
	if conf.calls != 1 {
		t.Errorf("expected 1 reconciler call, got %d", conf.calls)
	}
}

func TestSessionManager_ConfirmFailureKeepsAlertSounding(t *testing.T) {
	mgr, mr, sink, conf := newTestManager(SessionManagerConfig{SoundCueInterval: 5 * time.Millisecond})
	conf.err = intake.ErrOutOfStock

	if err := mgr.Open(sessionDose()); err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err := mgr.Confirm(context.Background(), nil)
	if !errors.Is(err, intake.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if s := mgr.Current(); s == nil || !s.Sounding {
		t.Fatal("expected session to stay open and sounding after a failed confirm")
	}
	if mr.stopCount() != 0 {
		t.Error("expected the relay alarm to stay live after a failed confirm")
	}

	// The sound loop keeps ticking.
	before := sink.count()
	deadline := time.Now().Add(time.Second)
	for sink.count() == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() == before {
		t.Fatal("expected sound cues to continue after a failed confirm")
	}

	// And the dismiss gate still holds.
	if err := mgr.Dismiss(false); !errors.Is(err, ErrDismissWhileSounding) {
		t.Fatalf("expected ErrDismissWhileSounding after failed confirm, got %v", err)
	}

	// Retry succeeds once the underlying condition clears.
	conf.err = nil
	if _, err := mgr.Confirm(context.Background(), nil); err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	if mgr.Current() != nil {
		t.Error("expected session closed after successful retry")
	}
}

func TestSessionManager_ConfirmWithoutSession(t *testing.T) {
	mgr, _, _, _ := newTestManager(SessionManagerConfig{SoundCueInterval: time.Hour})

	if _, err := mgr.Confirm(context.Background(), nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := mgr.Dismiss(false); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for dismiss, got %v", err)
	}
}

func TestSessionManager_DismissRefusedWhileSounding(t *testing.T) {
	mgr, mr, _, _ := newTestManager(SessionManagerConfig{SoundCueInterval: time.Hour})

	if err := mgr.Open(sessionDose()); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := mgr.Dismiss(false); !errors.Is(err, ErrDismissWhileSounding) {
		t.Fatalf("expected ErrDismissWhileSounding, got %v", err)
	}
	if mgr.Current() == nil {
		t.Fatal("expected session still open after refused dismiss")
	}

	// The relay's notification path bypasses the gate.
	if err := mgr.Dismiss(true); err != nil {
		t.Fatalf("dismiss via relay: %v", err)
	}
	if mgr.Current() != nil {
		t.Error("expected session closed")
	}
	if mr.stopCount() != 1 {
		t.Errorf("expected 1 relay stop, got %d", mr.stopCount())
	}
}

func TestSessionManager_DismissAllowedByPolicy(t *testing.T) {
	mgr, _, _, _ := newTestManager(SessionManagerConfig{
		SoundCueInterval:          time.Hour,
		AllowDismissWhileSounding: true,
	})

	if err := mgr.Open(sessionDose()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := mgr.Dismiss(false); err != nil {
		t.Fatalf("expected policy to allow dismiss while sounding, got %v", err)
	}
	if mgr.Current() != nil {
		t.Error("expected session closed")
	}
}

func TestSessionManager_RelayFailureKeepsAlertLocal(t *testing.T) {
	mgr, mr, _, _ := newTestManager(SessionManagerConfig{SoundCueInterval: time.Hour})
	mr.failing = true

	if err := mgr.Open(sessionDose()); err != nil {
		t.Fatalf("expected open to succeed despite relay failure, got %v", err)
	}
	if mgr.Current() == nil {
		t.Fatal("expected local session despite relay failure")
	}
	mgr.Dismiss(true)
}
