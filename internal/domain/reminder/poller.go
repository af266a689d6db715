package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/intake"
	"github.com/medtrack/medtrack/internal/domain/treatment"
	"github.com/medtrack/medtrack/internal/platform/events"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
)

// DefaultPollInterval is the consolidated evaluation cadence.
const DefaultPollInterval = 10 * time.Second

// DoseSource yields a patient's doses in stable creation order.
type DoseSource interface {
	ListDoses(ctx context.Context, patientID uuid.UUID) ([]treatment.Dose, error)
}

// LogSource yields a patient's intake logs for the current local day.
type LogSource interface {
	ListToday(ctx context.Context, patientID uuid.UUID) ([]intake.LogEntry, error)
}

// Presence reports which patients currently have a foreground context
// attached; only those are polled.
type Presence interface {
	ConnectedPatients() []uuid.UUID
}

// Engine holds one SessionManager per patient and the shared dependencies
// used to build them lazily.
type Engine struct {
	relay      AlarmRelay
	sink       SoundSink
	reconciler Confirmer
	metrics    *telemetry.Metrics
	recorder   events.Recorder
	logger     zerolog.Logger
	cfg        SessionManagerConfig

	mu       sync.Mutex
	managers map[uuid.UUID]*SessionManager
}

func NewEngine(alarmRelay AlarmRelay, sink SoundSink, reconciler Confirmer, metrics *telemetry.Metrics, recorder events.Recorder, logger zerolog.Logger, cfg SessionManagerConfig) *Engine {
	return &Engine{
		relay:      alarmRelay,
		sink:       sink,
		reconciler: reconciler,
		metrics:    metrics,
		recorder:   recorder,
		logger:     logger,
		cfg:        cfg,
		managers:   make(map[uuid.UUID]*SessionManager),
	}
}

// ManagerFor returns the patient's session manager, creating it on first
// use.
func (e *Engine) ManagerFor(patientID uuid.UUID) *SessionManager {
	e.mu.Lock()
	defer e.mu.Unlock()

	mgr, ok := e.managers[patientID]
	if !ok {
		mgr = NewSessionManager(patientID, e.relay, e.sink, e.reconciler, e.metrics, e.recorder, e.logger, e.cfg)
		e.managers[patientID] = mgr
	}
	return mgr
}

// Poller drives the engine on a single consolidated ticker. Each tick
// re-reads the clock, evaluates every present patient, and opens an alert
// where a dose is due. A failure in one tick, or for one patient, never
// stops the loop.
type Poller struct {
	engine   *Engine
	doses    DoseSource
	logs     LogSource
	presence Presence
	metrics  *telemetry.Metrics
	logger   zerolog.Logger

	interval  time.Duration
	tolerance time.Duration
	nowFn     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewPoller(engine *Engine, doses DoseSource, logs LogSource, presence Presence, metrics *telemetry.Metrics, logger zerolog.Logger, interval, tolerance time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if tolerance <= 0 {
		tolerance = DefaultDueTolerance
	}
	return &Poller{
		engine:    engine,
		doses:     doses,
		logs:      logs,
		presence:  presence,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		tolerance: tolerance,
		nowFn:     time.Now,
	}
}

// SetNowFunc overrides the clock. Tests only.
func (p *Poller) SetNowFunc(fn func() time.Time) { p.nowFn = fn }

// Start launches the polling loop. It is a no-op when already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.loop(loopCtx)

	p.logger.Info().
		Dur("interval", p.interval).
		Dur("tolerance", p.tolerance).
		Msg("reminder: poller started")
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info().Msg("reminder: poller stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass inside its own failure boundary.
func (p *Poller) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Inc(telemetry.CounterPollFailures)
			p.logger.Error().Interface("panic", r).Msg("reminder: tick panicked")
		}
	}()

	p.metrics.Inc(telemetry.CounterPollTicks)
	now := p.nowFn()

	for _, patientID := range p.presence.ConnectedPatients() {
		if err := p.evaluatePatient(ctx, patientID, now); err != nil {
			p.metrics.Inc(telemetry.CounterPollFailures)
			p.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("reminder: evaluation skipped this tick")
		}
	}
}

func (p *Poller) evaluatePatient(ctx context.Context, patientID uuid.UUID, now time.Time) error {
	mgr := p.engine.ManagerFor(patientID)
	if mgr.Current() != nil {
		// An alert is already on screen; never stack a second one.
		return nil
	}

	doses, err := p.doses.ListDoses(ctx, patientID)
	if err != nil {
		return err
	}
	logs, err := p.logs.ListToday(ctx, patientID)
	if err != nil {
		return err
	}

	due := FindDueDose(doses, logs, now, p.tolerance)
	if due == nil {
		return nil
	}
	if err := mgr.Open(*due); err != nil {
		// Lost the race with another opener; the invariant holds either way.
		if err == ErrSessionOpen {
			return nil
		}
		return err
	}
	return nil
}
