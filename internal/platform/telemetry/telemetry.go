// Package telemetry provides lightweight observability for the reminder
// engine using only standard library constructs: named counters and gauges
// plus a Prometheus text exposition endpoint, without importing an external
// metrics SDK.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Counter names used by the reminder engine. Kept in one place so the
// exposition endpoint and the tests agree on spelling.
const (
	CounterPollTicks       = "reminder_poll_ticks_total"
	CounterPollFailures    = "reminder_poll_failures_total"
	CounterAlertsOpened    = "reminder_alerts_opened_total"
	CounterIntakeConfirmed = "reminder_intake_confirmed_total"
	CounterOutOfStock      = "reminder_out_of_stock_total"
	CounterDismissals      = "reminder_alerts_dismissed_total"
	CounterDroppedActions  = "relay_actions_dropped_total"
	CounterSoundCues       = "relay_sound_cues_total"
)

// Metrics is a process-wide registry of counters and gauges. The zero value
// is not usable; construct with NewMetrics.
type Metrics struct {
	serviceName string
	startedAt   time.Time

	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64
}

func NewMetrics(serviceName string) *Metrics {
	if serviceName == "" {
		serviceName = "medtrack-server"
	}
	return &Metrics{
		serviceName: serviceName,
		startedAt:   time.Now(),
		counters:    make(map[string]int64),
		gauges:      make(map[string]int64),
	}
}

// Inc increments a named counter by one.
func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()
}

// Add increments a named counter by delta.
func (m *Metrics) Add(name string, delta int64) {
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

// Counter returns the current value of a named counter (zero if never
// incremented).
func (m *Metrics) Counter(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// SetGauge sets a named gauge to an absolute value.
func (m *Metrics) SetGauge(name string, val int64) {
	m.mu.Lock()
	m.gauges[name] = val
	m.mu.Unlock()
}

// Gauge returns the current value of a named gauge.
func (m *Metrics) Gauge(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[name]
}

func (m *Metrics) snapshot() (counters, gauges map[string]int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counters = make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}
	gauges = make(map[string]int64, len(m.gauges))
	for k, v := range m.gauges {
		gauges[k] = v
	}
	return counters, gauges
}

// HTTPMiddleware counts requests and failures per route.
func (m *Metrics) HTTPMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			m.Inc("http_requests_total")
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			if status >= 500 {
				m.Inc("http_requests_failed_total")
			}
			return err
		}
	}
}

// PrometheusHandler serves all counters and gauges in the Prometheus text
// exposition format, plus process uptime.
func (m *Metrics) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		counters, gauges := m.snapshot()

		var b strings.Builder
		fmt.Fprintf(&b, "# HELP process_uptime_seconds Seconds since the server started.\n")
		fmt.Fprintf(&b, "# TYPE process_uptime_seconds gauge\n")
		fmt.Fprintf(&b, "process_uptime_seconds{service=%q} %.0f\n", m.serviceName, time.Since(m.startedAt).Seconds())

		writeFamily(&b, "counter", counters)
		writeFamily(&b, "gauge", gauges)

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func writeFamily(b *strings.Builder, typ string, metrics map[string]int64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
		fmt.Fprintf(b, "%s %d\n", name, metrics[name])
	}
}
