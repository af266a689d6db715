package relay

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/events"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
)

type mockBroadcaster struct {
	mu        sync.Mutex
	messages  map[uuid.UUID][]Message
	listeners map[uuid.UUID]int
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		messages:  make(map[uuid.UUID][]Message),
		listeners: make(map[uuid.UUID]int),
	}
}

func (m *mockBroadcaster) BroadcastToPatient(patientID uuid.UUID, msg Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[patientID] = append(m.messages[patientID], msg)
	return m.listeners[patientID]
}

func (m *mockBroadcaster) received(patientID uuid.UUID, typ MessageType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages[patientID] {
		if msg.Type == typ {
			n++
		}
	}
	return n
}

func newTestRelay() (*Relay, *mockBroadcaster, *MockNotifier, *telemetry.Metrics) {
	hub := newMockBroadcaster()
	notifier := NewMockNotifier()
	metrics := telemetry.NewMetrics("test")
	r := New(hub, notifier, metrics, events.NopRecorder{}, zerolog.New(os.Stderr), time.Second)
	return r, hub, notifier, metrics
}

func testDose(patientID uuid.UUID) DoseSnapshot {
	return DoseSnapshot{
		MedicineID:   uuid.New(),
		PatientID:    patientID,
		Name:         "Amoxicillin",
		Dosage:       "500mg",
		Frequency:    "3x daily",
		ScheduleTime: "09:00",
	}
}

func TestStartStopAlarm_Symmetry(t *testing.T) {
	r, _, notifier, _ := newTestRelay()
	patientID := uuid.New()
	dose := testDose(patientID)

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.HasAlarm(dose.MedicineID) {
		t.Fatal("expected live alarm after start")
	}
	if notifier.Shown() != 1 {
		t.Fatalf("expected 1 shown notification, got %d", notifier.Shown())
	}

	r.StopAlarm(dose.MedicineID)
	if r.HasAlarm(dose.MedicineID) {
		t.Fatal("expected alarm cleared after stop")
	}
	if notifier.Shown() != 0 {
		t.Fatalf("expected notification closed, got %d shown", notifier.Shown())
	}
	// Stop of an unknown dose is a no-op.
	r.StopAlarm(uuid.New())
	if got := len(notifier.CloseCalls()); got != 1 {
		t.Fatalf("expected exactly 1 close call, got %d", got)
	}
}

func TestStartAlarm_ReRaiseReplacesByTag(t *testing.T) {
	r, _, notifier, _ := newTestRelay()
	dose := testDose(uuid.New())

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("re-start: %v", err)
	}

	if notifier.Shown() != 1 {
		t.Fatalf("expected re-raise to replace, got %d shown", notifier.Shown())
	}
	if r.ActiveAlarms() != 1 {
		t.Fatalf("expected 1 live alarm, got %d", r.ActiveAlarms())
	}
	calls := notifier.NotifyCalls()
	if len(calls) != 2 || calls[0].Tag != calls[1].Tag {
		t.Fatal("expected both notify calls to carry the same tag")
	}
}

func TestNotification_CarriesSnapshotAndActions(t *testing.T) {
	r, _, notifier, _ := newTestRelay()
	dose := testDose(uuid.New())

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}

	calls := notifier.NotifyCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(calls))
	}
	n := calls[0]
	if n.Tag != dose.MedicineID.String() {
		t.Errorf("expected tag %s, got %s", dose.MedicineID, n.Tag)
	}
	if n.Dose.Name != dose.Name || n.Dose.Dosage != dose.Dosage {
		t.Error("expected notification to carry the full dose snapshot")
	}
	if len(n.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(n.Actions))
	}
}

func TestHandleNotificationAction_ConfirmForwardedToForeground(t *testing.T) {
	r, hub, _, metrics := newTestRelay()
	patientID := uuid.New()
	hub.listeners[patientID] = 1
	dose := testDose(patientID)

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.HandleNotificationAction(ActionConfirmTaken, dose.MedicineID)

	if got := hub.received(patientID, TypeConfirmTaken); got != 1 {
		t.Fatalf("expected 1 confirm_taken message, got %d", got)
	}
	// The relay forwards; it does not resolve the alarm itself.
	if !r.HasAlarm(dose.MedicineID) {
		t.Error("expected alarm still live until the foreground resolves it")
	}
	if got := metrics.Counter(telemetry.CounterDroppedActions); got != 0 {
		t.Errorf("expected no dropped actions, got %d", got)
	}
}

type captureRecorder struct {
	mu     sync.Mutex
	events []events.ReminderEvent
}

func (r *captureRecorder) Record(_ context.Context, ev *events.ReminderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return nil
}

func TestHandleNotificationAction_ConfirmWithNoListenersIsDroppedAndCounted(t *testing.T) {
	hub := newMockBroadcaster()
	metrics := telemetry.NewMetrics("test")
	rec := &captureRecorder{}
	r := New(hub, NewMockNotifier(), metrics, rec, zerolog.New(os.Stderr), time.Second)

	patientID := uuid.New()
	// No listeners registered for this patient.
	dose := testDose(patientID)

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.HandleNotificationAction(ActionConfirmTaken, dose.MedicineID)

	if got := metrics.Counter(telemetry.CounterDroppedActions); got != 1 {
		t.Fatalf("expected 1 dropped action, got %d", got)
	}
	if got := hub.received(patientID, TypeConfirmTaken); got != 1 {
		t.Fatalf("expected the broadcast attempt to be recorded, got %d", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0].Type != events.TypeActionDropped {
		t.Fatalf("expected one action_dropped audit event, got %v", rec.events)
	}
}

func TestHandleNotificationAction_DismissStopsAlarm(t *testing.T) {
	r, hub, notifier, metrics := newTestRelay()
	patientID := uuid.New()
	hub.listeners[patientID] = 1
	dose := testDose(patientID)

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.HandleNotificationAction(ActionDismiss, dose.MedicineID)

	if r.HasAlarm(dose.MedicineID) {
		t.Error("expected alarm cleared after dismiss")
	}
	if got := hub.received(patientID, TypeDismissAlarm); got != 1 {
		t.Errorf("expected 1 dismiss_alarm message, got %d", got)
	}
	if notifier.Shown() != 0 {
		t.Error("expected notification closed after dismiss")
	}
	if got := metrics.Counter(telemetry.CounterDismissals); got != 1 {
		t.Errorf("expected 1 dismissal counted, got %d", got)
	}
}

func TestNotificationClosed_ImplicitStop(t *testing.T) {
	r, _, notifier, _ := newTestRelay()
	dose := testDose(uuid.New())

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.NotificationClosed(dose.MedicineID)

	if r.HasAlarm(dose.MedicineID) {
		t.Error("expected implicit stop to clear the alarm")
	}
	if notifier.Shown() != 0 {
		t.Error("expected notification closed")
	}
}

func TestBroadcastSoundCues_OnlyWhileAlarmLive(t *testing.T) {
	r, hub, _, metrics := newTestRelay()
	patientID := uuid.New()
	hub.listeners[patientID] = 1
	dose := testDose(patientID)

	// No alarms: a tick produces nothing.
	r.broadcastSoundCues()
	if got := hub.received(patientID, TypePlayAlarmSound); got != 0 {
		t.Fatalf("expected no sound cues without alarms, got %d", got)
	}

	if err := r.StartAlarm(dose); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.broadcastSoundCues()
	r.broadcastSoundCues()
	if got := hub.received(patientID, TypePlayAlarmSound); got != 2 {
		t.Fatalf("expected 2 sound cues, got %d", got)
	}
	if got := metrics.Counter(telemetry.CounterSoundCues); got != 2 {
		t.Errorf("expected 2 cues counted, got %d", got)
	}

	r.StopAlarm(dose.MedicineID)
	r.broadcastSoundCues()
	if got := hub.received(patientID, TypePlayAlarmSound); got != 2 {
		t.Fatalf("expected no cues after stop, got %d", got)
	}
}

func TestHandleClientMessage_StartRefusedForOtherPatient(t *testing.T) {
	r, _, notifier, _ := newTestRelay()
	owner := uuid.New()
	dose := testDose(owner)

	r.HandleClientMessage(uuid.New(), Message{Type: TypeStartAlarm, DoseID: dose.MedicineID, Dose: &dose})
	if r.HasAlarm(dose.MedicineID) {
		t.Fatal("expected start for another patient to be refused")
	}
	if notifier.Shown() != 0 {
		t.Fatal("expected no notification raised")
	}

	r.HandleClientMessage(owner, Message{Type: TypeStartAlarm, DoseID: dose.MedicineID, Dose: &dose})
	if !r.HasAlarm(dose.MedicineID) {
		t.Fatal("expected owner's start to be accepted")
	}
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	hub := NewHub()
	patientID := uuid.New()

	client := &Client{ID: "c1", PatientID: patientID, Send: make(chan []byte, 4)}
	hub.Register(client)

	if got := hub.ClientCount(patientID); got != 1 {
		t.Fatalf("expected 1 client, got %d", got)
	}
	if got := len(hub.ConnectedPatients()); got != 1 {
		t.Fatalf("expected 1 connected patient, got %d", got)
	}

	delivered := hub.BroadcastToPatient(patientID, Message{Type: TypePlayAlarmSound, DoseID: uuid.New(), Timestamp: time.Now()})
	if delivered != 1 {
		t.Fatalf("expected delivery to 1 client, got %d", delivered)
	}
	select {
	case <-client.Send:
	default:
		t.Fatal("expected a message in the client's send buffer")
	}

	hub.Unregister(client)
	if got := hub.ClientCount(patientID); got != 0 {
		t.Fatalf("expected 0 clients after unregister, got %d", got)
	}
	if delivered := hub.BroadcastToPatient(patientID, Message{Type: TypePlayAlarmSound}); delivered != 0 {
		t.Fatalf("expected no delivery after unregister, got %d", delivered)
	}
	// Unregistering twice must not panic or double-close.
	hub.Unregister(client)
}
