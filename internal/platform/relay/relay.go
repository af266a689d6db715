package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/events"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
)

// Broadcaster delivers a message to every foreground context of a patient
// and reports how many received it.
type Broadcaster interface {
	BroadcastToPatient(patientID uuid.UUID, msg Message) int
}

// alarm is one live entry in the relay's alarm table.
type alarm struct {
	dose      DoseSnapshot
	startedAt time.Time
	tag       string
}

// Relay owns the alarm table and the system notification surface. It never
// writes intake logs itself: confirm actions from notifications are handed
// to foreground contexts, and a confirm with no context attached is dropped
// and counted.
type Relay struct {
	hub      Broadcaster
	notifier SystemNotifier
	metrics  *telemetry.Metrics
	recorder events.Recorder
	logger   zerolog.Logger

	soundInterval time.Duration
	nowFn         func() time.Time

	mu     sync.Mutex
	alarms map[uuid.UUID]*alarm
}

func New(hub Broadcaster, notifier SystemNotifier, metrics *telemetry.Metrics, recorder events.Recorder, logger zerolog.Logger, soundInterval time.Duration) *Relay {
	if soundInterval <= 0 {
		soundInterval = time.Second
	}
	return &Relay{
		hub:           hub,
		notifier:      notifier,
		metrics:       metrics,
		recorder:      recorder,
		logger:        logger,
		soundInterval: soundInterval,
		nowFn:         time.Now,
		alarms:        make(map[uuid.UUID]*alarm),
	}
}

// SetNowFunc overrides the clock. Tests only.
func (r *Relay) SetNowFunc(fn func() time.Time) { r.nowFn = fn }

// StartAlarm registers a live alarm for the dose and raises (or re-raises)
// its system notification. Starting an alarm that is already live replaces
// the notification rather than stacking a second one.
func (r *Relay) StartAlarm(dose DoseSnapshot) error {
	tag := dose.MedicineID.String()

	r.mu.Lock()
	r.alarms[dose.MedicineID] = &alarm{
		dose:      dose,
		startedAt: r.nowFn(),
		tag:       tag,
	}
	r.mu.Unlock()

	note := DoseNotification{
		Tag:     tag,
		Title:   "Time to take " + dose.Name,
		Body:    fmt.Sprintf("%s, %s at %s", dose.Name, dose.Dosage, dose.ScheduleTime),
		Dose:    dose,
		Actions: []string{ActionConfirmTaken, ActionDismiss},
	}
	if err := r.notifier.Notify(note); err != nil {
		return fmt.Errorf("raise notification: %w", err)
	}
	return nil
}

// StopAlarm removes the alarm and closes its notification. Stopping an
// unknown dose is a no-op.
func (r *Relay) StopAlarm(doseID uuid.UUID) {
	r.mu.Lock()
	a, ok := r.alarms[doseID]
	if ok {
		delete(r.alarms, doseID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := r.notifier.Close(a.tag); err != nil {
		r.logger.Warn().Err(err).Str("tag", a.tag).Msg("relay: failed to close notification")
	}
	r.hub.BroadcastToPatient(a.dose.PatientID, Message{
		Type:      TypeStopAlarm,
		DoseID:    doseID,
		Timestamp: r.nowFn(),
	})
}

// HasAlarm reports whether a dose currently has a live alarm.
func (r *Relay) HasAlarm(doseID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.alarms[doseID]
	return ok
}

// ActiveAlarms returns the number of live alarms.
func (r *Relay) ActiveAlarms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alarms)
}

// HandleNotificationAction routes a notification button press. Confirm is
// forwarded to the patient's foreground contexts, which own the write path;
// if none is attached the action is dropped loudly. Dismiss stops the alarm
// and tells foreground contexts to close their alert UI.
func (r *Relay) HandleNotificationAction(action string, doseID uuid.UUID) {
	r.mu.Lock()
	a, ok := r.alarms[doseID]
	r.mu.Unlock()
	if !ok {
		r.logger.Debug().Str("dose_id", doseID.String()).Msg("relay: action for unknown alarm ignored")
		return
	}

	switch action {
	case ActionConfirmTaken:
		dose := a.dose
		delivered := r.hub.BroadcastToPatient(dose.PatientID, Message{
			Type:      TypeConfirmTaken,
			DoseID:    doseID,
			Dose:      &dose,
			Timestamp: r.nowFn(),
		})
		if delivered == 0 {
			r.metrics.Inc(telemetry.CounterDroppedActions)
			if err := r.recorder.Record(context.Background(), &events.ReminderEvent{
				PatientID:  dose.PatientID,
				MedicineID: doseID,
				Type:       events.TypeActionDropped,
			}); err != nil {
				r.logger.Warn().Err(err).Msg("relay: audit record failed")
			}
			r.logger.Warn().
				Str("dose_id", doseID.String()).
				Str("patient_id", dose.PatientID.String()).
				Msg("relay: confirm action dropped, no foreground context attached")
		}
	case ActionDismiss:
		dose := a.dose
		r.hub.BroadcastToPatient(dose.PatientID, Message{
			Type:      TypeDismissAlarm,
			DoseID:    doseID,
			Dose:      &dose,
			Timestamp: r.nowFn(),
		})
		r.metrics.Inc(telemetry.CounterDismissals)
		r.StopAlarm(doseID)
	default:
		r.logger.Warn().Str("action", action).Msg("relay: unknown notification action")
	}
}

// NotificationClosed is called when the platform reports a notification was
// dismissed by other means (swiped away, cleared). It is an implicit stop.
func (r *Relay) NotificationClosed(doseID uuid.UUID) {
	r.StopAlarm(doseID)
}

// HandleClientMessage routes an inbound foreground message. Only start and
// stop are accepted from clients; everything else is relay-originated and
// ignored on the way in.
func (r *Relay) HandleClientMessage(patientID uuid.UUID, msg Message) {
	switch msg.Type {
	case TypeStartAlarm:
		if msg.Dose == nil {
			r.logger.Debug().Msg("relay: start_alarm without dose snapshot ignored")
			return
		}
		if msg.Dose.PatientID != patientID {
			r.logger.Warn().
				Str("patient_id", patientID.String()).
				Msg("relay: start_alarm for another patient refused")
			return
		}
		if err := r.StartAlarm(*msg.Dose); err != nil {
			r.logger.Warn().Err(err).Msg("relay: start_alarm failed")
		}
	case TypeStopAlarm:
		r.mu.Lock()
		a, ok := r.alarms[msg.DoseID]
		r.mu.Unlock()
		if ok && a.dose.PatientID != patientID {
			return
		}
		r.StopAlarm(msg.DoseID)
	default:
		r.logger.Debug().Str("type", string(msg.Type)).Msg("relay: inbound message type ignored")
	}
}

// Run drives the sound-cue loop: while at least one alarm is live, every
// interval each affected patient's foreground contexts receive a
// play_alarm_sound message. Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.soundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.broadcastSoundCues()
		}
	}
}

func (r *Relay) broadcastSoundCues() {
	r.mu.Lock()
	live := make([]*alarm, 0, len(r.alarms))
	for _, a := range r.alarms {
		live = append(live, a)
	}
	r.mu.Unlock()

	now := r.nowFn()
	for _, a := range live {
		r.hub.BroadcastToPatient(a.dose.PatientID, Message{
			Type:      TypePlayAlarmSound,
			DoseID:    a.dose.MedicineID,
			Timestamp: now,
		})
		r.metrics.Inc(telemetry.CounterSoundCues)
	}
}
