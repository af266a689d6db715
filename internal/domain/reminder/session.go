package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/intake"
	"github.com/medtrack/medtrack/internal/domain/treatment"
	"github.com/medtrack/medtrack/internal/platform/events"
	"github.com/medtrack/medtrack/internal/platform/relay"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
)

var (
	// ErrSessionOpen is returned when a second alert would be opened while
	// one is already active for the same patient context.
	ErrSessionOpen = errors.New("an alert session is already open")

	// ErrNoSession is returned when confirm or dismiss arrives with no
	// active alert.
	ErrNoSession = errors.New("no alert session is open")

	// ErrDismissWhileSounding is returned when dismissal is refused because
	// the sound cue is still looping and policy does not allow it.
	ErrDismissWhileSounding = errors.New("cannot dismiss while the alarm is sounding")
)

// AlarmRelay is the slice of the relay the session manager needs.
type AlarmRelay interface {
	StartAlarm(dose relay.DoseSnapshot) error
	StopAlarm(doseID uuid.UUID)
}

// SoundSink receives the 1-second cue while an alert is sounding. The hub's
// play_alarm_sound broadcast satisfies it in production.
type SoundSink interface {
	PlayCue(patientID, doseID uuid.UUID)
}

// Confirmer is the intake reconciler as seen from the session.
type Confirmer interface {
	ConfirmIntake(ctx context.Context, patientID, medicineID uuid.UUID, scheduledTimeOfDay string, note *string) (*intake.LogEntry, error)
}

// Session is a snapshot of the active alert.
type Session struct {
	Dose     treatment.Dose `json:"dose"`
	OpenedAt time.Time      `json:"opened_at"`
	Sounding bool           `json:"sounding"`
}

// SessionManager owns at most one alert session for one patient. Opening a
// session starts the sound-cue loop and registers the alarm with the relay;
// the session closes only through Confirm or Dismiss.
type SessionManager struct {
	patientID  uuid.UUID
	relay      AlarmRelay
	sink       SoundSink
	reconciler Confirmer
	metrics    *telemetry.Metrics
	recorder   events.Recorder
	logger     zerolog.Logger

	soundInterval time.Duration
	allowDismiss  bool
	nowFn         func() time.Time

	mu        sync.Mutex
	current   *Session
	stopSound context.CancelFunc
}

// SessionManagerConfig carries the policy knobs for a manager.
type SessionManagerConfig struct {
	SoundCueInterval          time.Duration
	AllowDismissWhileSounding bool
}

func NewSessionManager(patientID uuid.UUID, alarmRelay AlarmRelay, sink SoundSink, reconciler Confirmer, metrics *telemetry.Metrics, recorder events.Recorder, logger zerolog.Logger, cfg SessionManagerConfig) *SessionManager {
	interval := cfg.SoundCueInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &SessionManager{
		patientID:     patientID,
		relay:         alarmRelay,
		sink:          sink,
		reconciler:    reconciler,
		metrics:       metrics,
		recorder:      recorder,
		logger:        logger,
		soundInterval: interval,
		allowDismiss:  cfg.AllowDismissWhileSounding,
		nowFn:         time.Now,
	}
}

// SetNowFunc overrides the clock. Tests only.
func (m *SessionManager) SetNowFunc(fn func() time.Time) { m.nowFn = fn }

// Current returns a snapshot of the open session, or nil.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	return &snapshot
}

// Open starts an alert session for the dose: registers the alarm with the
// relay and starts the sound-cue loop. At most one session may be open;
// a second Open returns ErrSessionOpen and changes nothing.
func (m *SessionManager) Open(dose treatment.Dose) error {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return ErrSessionOpen
	}

	m.current = &Session{
		Dose:     dose,
		OpenedAt: m.nowFn(),
		Sounding: true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopSound = cancel
	m.mu.Unlock()

	go m.soundLoop(ctx, dose.MedicineID)

	if err := m.relay.StartAlarm(toSnapshot(dose)); err != nil {
		m.logger.Warn().Err(err).Str("medicine_id", dose.MedicineID.String()).Msg("reminder: relay start failed, alert stays local")
	}
	m.metrics.Inc(telemetry.CounterAlertsOpened)
	m.recordEvent(dose.MedicineID, events.TypeAlertOpened)
	m.logger.Info().
		Str("medicine_id", dose.MedicineID.String()).
		Str("medicine", dose.Name).
		Str("schedule_time", dose.ScheduleTime).
		Msg("reminder: alert opened")
	return nil
}

// recordEvent writes a best-effort audit row. Failures are logged and
// swallowed; the alert lifecycle never blocks on the audit table.
func (m *SessionManager) recordEvent(medicineID uuid.UUID, eventType string) {
	if err := m.recorder.Record(context.Background(), &events.ReminderEvent{
		PatientID:  m.patientID,
		MedicineID: medicineID,
		Type:       eventType,
	}); err != nil {
		m.logger.Warn().Err(err).Str("type", eventType).Msg("reminder: audit record failed")
	}
}

func (m *SessionManager) soundLoop(ctx context.Context, doseID uuid.UUID) {
	ticker := time.NewTicker(m.soundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sink.PlayCue(m.patientID, doseID)
		}
	}
}

// Confirm runs the intake reconciler and, on success, silences the sound,
// closes the session, and stops the relay alarm. On reconciler failure the
// session is left exactly as it was, sound loop and dismiss gate included,
// so the user can restock and retry; the error is returned unwrapped so
// callers can branch on intake.ErrOutOfStock.
func (m *SessionManager) Confirm(ctx context.Context, note *string) (*intake.LogEntry, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	dose := m.current.Dose
	m.mu.Unlock()

	entry, err := m.reconciler.ConfirmIntake(ctx, m.patientID, dose.MedicineID, dose.ScheduleTime, note)
	if err != nil {
		m.logger.Warn().Err(err).Str("medicine_id", dose.MedicineID.String()).Msg("reminder: confirm failed, session stays open")
		return nil, err
	}

	m.mu.Lock()
	m.silenceLocked()
	m.current = nil
	m.mu.Unlock()

	m.relay.StopAlarm(dose.MedicineID)
	m.metrics.Inc(telemetry.CounterIntakeConfirmed)
	return entry, nil
}

// Dismiss closes the session without logging an intake. While the sound cue
// is looping it is refused unless the configured policy allows it or the
// dismissal arrived through the relay's notification path.
func (m *SessionManager) Dismiss(viaRelay bool) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if m.current.Sounding && !m.allowDismiss && !viaRelay {
		m.mu.Unlock()
		return ErrDismissWhileSounding
	}
	dose := m.current.Dose
	m.silenceLocked()
	m.current = nil
	m.mu.Unlock()

	m.relay.StopAlarm(dose.MedicineID)
	m.metrics.Inc(telemetry.CounterDismissals)
	m.recordEvent(dose.MedicineID, events.TypeAlertDismissed)
	m.logger.Info().Str("medicine_id", dose.MedicineID.String()).Msg("reminder: alert dismissed")
	return nil
}

// silenceLocked stops the sound loop. Caller holds m.mu.
func (m *SessionManager) silenceLocked() {
	if m.stopSound != nil {
		m.stopSound()
		m.stopSound = nil
	}
	if m.current != nil {
		m.current.Sounding = false
	}
}

func toSnapshot(dose treatment.Dose) relay.DoseSnapshot {
	return relay.DoseSnapshot{
		MedicineID:   dose.MedicineID,
		PatientID:    dose.PatientID,
		Name:         dose.Name,
		Dosage:       dose.Dosage,
		Frequency:    dose.Frequency,
		Instructions: dose.Instructions,
		ScheduleTime: dose.ScheduleTime,
	}
}
