// Package relay bridges the in-process reminder engine to foreground
// contexts (WebSocket clients) and to the system notification surface. It
// owns the table of live alarms; nothing else in the process raises or
// clears system notifications.
package relay

import (
	"time"

	"github.com/google/uuid"
)

// MessageType enumerates the messages exchanged with foreground contexts.
// Every payload carries an explicit type so dispatch is a switch over a
// closed set rather than string sniffing.
type MessageType string

const (
	// Foreground -> relay.
	TypeStartAlarm MessageType = "start_alarm"

	// Both directions: foreground contexts request a stop, and the relay
	// echoes it back out when an alarm ends so open alert UIs close.
	TypeStopAlarm MessageType = "stop_alarm"

	// Relay -> foreground.
	TypePlayAlarmSound MessageType = "play_alarm_sound"
	TypeConfirmTaken   MessageType = "confirm_taken"
	TypeDismissAlarm   MessageType = "dismiss_alarm"
)

// DoseSnapshot is the self-contained dose payload carried by alarm messages
// and system notifications. Receivers must not need a further lookup to
// render it.
type DoseSnapshot struct {
	MedicineID   uuid.UUID `json:"medicine_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	Instructions *string   `json:"instructions,omitempty"`
	ScheduleTime string    `json:"schedule_time"`
}

// Message is the wire format for both directions of the WebSocket channel.
// DoseID is always set; Dose is present on messages that carry the full
// snapshot (start_alarm, confirm_taken, dismiss_alarm).
type Message struct {
	Type      MessageType   `json:"type"`
	DoseID    uuid.UUID     `json:"dose_id"`
	Dose      *DoseSnapshot `json:"dose,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
