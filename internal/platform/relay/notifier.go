package relay

import (
	"sync"

	"github.com/rs/zerolog"
)

// Notification action identifiers carried back from the system surface.
const (
	ActionConfirmTaken = "confirm_taken"
	ActionDismiss      = "dismiss"
)

// DoseNotification is one system notification for a due dose. Tag equals
// the dose id: posting a second notification with the same tag replaces the
// first instead of stacking.
type DoseNotification struct {
	Tag     string
	Title   string
	Body    string
	Dose    DoseSnapshot
	Actions []string
}

// SystemNotifier is the OS/platform notification surface. Implementations
// must treat Notify with an existing tag as replace, not append.
type SystemNotifier interface {
	Notify(n DoseNotification) error
	Close(tag string) error
}

// LogNotifier writes notifications to the structured log. It stands in for
// a real platform surface in headless deployments.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(note DoseNotification) error {
	n.logger.Info().
		Str("tag", note.Tag).
		Str("title", note.Title).
		Str("medicine", note.Dose.Name).
		Strs("actions", note.Actions).
		Msg("system notification raised")
	return nil
}

func (n *LogNotifier) Close(tag string) error {
	n.logger.Info().Str("tag", tag).Msg("system notification closed")
	return nil
}

// ---------------------------------------------------------------------------
// Mock notifier (test double)
// ---------------------------------------------------------------------------

// MockNotifier is a test double for SystemNotifier that keeps the set of
// currently shown notifications by tag.
type MockNotifier struct {
	mu      sync.Mutex
	shown   map[string]DoseNotification
	notifys []DoseNotification
	closes  []string
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{shown: make(map[string]DoseNotification)}
}

func (m *MockNotifier) Notify(n DoseNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown[n.Tag] = n
	m.notifys = append(m.notifys, n)
	return nil
}

func (m *MockNotifier) Close(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shown, tag)
	m.closes = append(m.closes, tag)
	return nil
}

// Shown returns how many notifications are currently displayed.
func (m *MockNotifier) Shown() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shown)
}

// NotifyCalls returns a copy of all Notify invocations in order.
func (m *MockNotifier) NotifyCalls() []DoseNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DoseNotification, len(m.notifys))
	copy(out, m.notifys)
	return out
}

// CloseCalls returns a copy of all closed tags in order.
func (m *MockNotifier) CloseCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.closes))
	copy(out, m.closes)
	return out
}
