package hvac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/models"
)

// Caller errors reported for invalid operations.
var (
	ErrNotRunning       = errors.New("state machine is not running")
	ErrAlreadyRunning   = errors.New("state machine is already running")
	ErrIncompatibleMode = errors.New("requested mode is incompatible with the configured system mode")
)

const (
	mailboxSize    = 64
	executeTimeout = 15 * time.Second
)

// Recorder receives log entries for transitions, overrides and
// failures. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev models.HvacEvent)
}

// Notifier is told about unit command failures so alerting can react.
type Notifier interface {
	UnitCommandFailed(entityID string, err error)
}

type eventKind int

const (
	evManualOverride eventKind = iota
	evOff
	evAutoEvaluate
	evUpdateConditions
	evDefrostComplete
)

type machineEvent struct {
	kind       eventKind
	mode       models.HvacMode
	targetTemp *float64
	preset     string
	cond       models.Condition
	fromSensor bool
}

// Machine is the orchestration state machine. It owns the
// OperatingContext under a single-writer discipline: one goroutine
// drains the mailbox and is the only mutator. Evaluation and
// transition are synchronous; only execution performs I/O, fanned out
// off the loop goroutine.
type Machine struct {
	engine     *Engine
	exec       Executor
	systemMode models.SystemMode
	log        *logger.Logger
	recorder   Recorder
	notifier   Notifier
	now        func() time.Time

	mailbox chan machineEvent
	quit    chan struct{}
	loopWG  sync.WaitGroup
	execWG  sync.WaitGroup

	mu      sync.RWMutex
	running bool
	state   models.State
	octx    models.OperatingContext

	defrostTimer *time.Timer
}

// MachineOption customizes machine construction.
type MachineOption func(*Machine)

// WithRecorder attaches an event log sink.
func WithRecorder(r Recorder) MachineOption {
	return func(m *Machine) { m.recorder = r }
}

// WithNotifier attaches a command-failure notifier.
func WithNotifier(n Notifier) MachineOption {
	return func(m *Machine) { m.notifier = n }
}

// WithMachineClock injects a clock for tests.
func WithMachineClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

func NewMachine(engine *Engine, exec Executor, systemMode models.SystemMode, log *logger.Logger, opts ...MachineOption) *Machine {
	m := &Machine{
		engine:     engine,
		exec:       exec,
		systemMode: systemMode,
		log:        log,
		now:        time.Now,
		state:      models.StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start spins up the mailbox loop.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.mailbox = make(chan machineEvent, mailboxSize)
	m.quit = make(chan struct{})
	m.running = true

	m.loopWG.Add(1)
	go m.loop()
	return nil
}

// Stop shuts the loop down and waits for in-flight unit commands.
func (m *Machine) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	close(m.quit)
	m.mu.Unlock()

	m.loopWG.Wait()
	m.execWG.Wait()
	return nil
}

// ManualOverride records an operator directive and re-evaluates
// through the same guard chain as automatic decisions. Mode
// compatibility with the configured system mode is a caller error.
func (m *Machine) ManualOverride(ctx context.Context, mode models.HvacMode, targetTemp *float64, preset string) error {
	switch mode {
	case models.ModeHeat:
		if !m.systemMode.AllowsHeat() {
			return fmt.Errorf("%w: heat requested under %s", ErrIncompatibleMode, m.systemMode)
		}
	case models.ModeCool:
		if !m.systemMode.AllowsCool() {
			return fmt.Errorf("%w: cool requested under %s", ErrIncompatibleMode, m.systemMode)
		}
	case models.ModeOff:
	default:
		return fmt.Errorf("unknown hvac mode %q", mode)
	}
	return m.send(ctx, machineEvent{kind: evManualOverride, mode: mode, targetTemp: targetTemp, preset: preset})
}

// Off hard-transitions back to idle and switches every unit off.
func (m *Machine) Off(ctx context.Context) error {
	return m.send(ctx, machineEvent{kind: evOff})
}

// AutoEvaluate re-runs the engine against the current context.
func (m *Machine) AutoEvaluate(ctx context.Context) error {
	return m.send(ctx, machineEvent{kind: evAutoEvaluate})
}

// UpdateConditions merges new sensor data into the context. When
// fromSensor is set the update immediately chains an automatic
// evaluation, so each sensor notification causes at most one
// transition attempt.
func (m *Machine) UpdateConditions(ctx context.Context, cond models.Condition, fromSensor bool) error {
	return m.send(ctx, machineEvent{kind: evUpdateConditions, cond: cond, fromSensor: fromSensor})
}

// Status returns the current state and a copy of the context.
func (m *Machine) Status() models.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.Status{
		CurrentState: m.state,
		Context:      cloneContext(m.octx),
		SystemMode:   m.systemMode,
		CanHeat:      m.systemMode.AllowsHeat(),
		CanCool:      m.systemMode.AllowsCool(),
	}
}

func (m *Machine) send(ctx context.Context, ev machineEvent) error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case m.mailbox <- ev:
		return nil
	case <-m.quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) loop() {
	defer m.loopWG.Done()
	for {
		select {
		case <-m.quit:
			m.cancelDefrostTimer()
			return
		case ev := <-m.mailbox:
			m.handle(ev)
		}
	}
}

func (m *Machine) handle(ev machineEvent) {
	switch ev.kind {
	case evManualOverride:
		ov := &models.ManualOverride{
			Mode:       ev.mode,
			TargetTemp: ev.targetTemp,
			Preset:     ev.preset,
			SetAt:      m.now(),
		}
		m.mutateContext(func(c *models.OperatingContext) { c.Override = ov })
		m.record(models.EventOverride, "manual override set", map[string]any{
			"mode": ev.mode, "target_temp": ev.targetTemp,
		})
		m.runEvaluation(true)

	case evOff:
		m.cancelDefrostTimer()
		m.mutateContext(func(c *models.OperatingContext) { c.Override = nil })
		prev := m.setState(models.StateIdle)
		m.record(models.EventOff, "explicit off", map[string]any{"from": prev})
		m.dispatchExecution(effectOff, nil)

	case evAutoEvaluate:
		m.runEvaluation(false)

	case evUpdateConditions:
		m.mergeConditions(ev)
		if ev.fromSensor {
			m.runEvaluation(false)
		}

	case evDefrostComplete:
		m.cancelDefrostTimer()
		if m.currentState() != models.StateDefrosting {
			return
		}
		m.setState(models.StateHeating)
		m.record(models.EventTransition, "defrost complete, resuming heating", map[string]any{
			"from": models.StateDefrosting, "to": models.StateHeating,
		})
		m.dispatchExecution(effectHeat, m.overrideSnapshot())
	}
}

// mergeConditions folds a partial update into the context. A
// sensor-driven update without explicit clock fields refreshes hour
// and weekday from the wall clock.
func (m *Machine) mergeConditions(ev machineEvent) {
	m.mutateContext(func(c *models.OperatingContext) {
		if ev.cond.Indoor != nil {
			v := *ev.cond.Indoor
			c.Indoor = &v
		}
		if ev.cond.Outdoor != nil {
			v := *ev.cond.Outdoor
			c.Outdoor = &v
		}
		switch {
		case ev.cond.Hour != nil:
			c.Hour = *ev.cond.Hour
		case ev.fromSensor:
			now := m.now()
			c.Hour = now.Hour()
			wd := now.Weekday()
			c.IsWeekday = wd != time.Saturday && wd != time.Sunday
		}
		if ev.cond.IsWeekday != nil {
			c.IsWeekday = *ev.cond.IsWeekday
		}
	})
}

// runEvaluation passes through the transient evaluating state, applies
// the guard chain and commits the resulting transition. forceExec
// re-issues commands even without a state change, so a replacing
// override always reaches the units.
func (m *Machine) runEvaluation(forceExec bool) {
	prev := m.setState(models.StateEvaluating)
	octx := m.contextSnapshot()

	res := m.engine.Evaluate(octx, prev)
	d := decide(prev, res, octx.Override, m.systemMode)

	if d.clearOverride && octx.Override != nil {
		m.mutateContext(func(c *models.OperatingContext) { c.Override = nil })
	}
	if prev == models.StateDefrosting && d.next != models.StateDefrosting {
		m.cancelDefrostTimer()
	}

	m.setState(d.next)
	changed := d.next != prev
	if changed {
		if m.log != nil {
			m.log.Infow("state transition", "from", prev, "to", d.next, "reason", res.Reason)
		}
		m.record(models.EventTransition, "state transition", map[string]any{
			"from": prev, "to": d.next, "reason": res.Reason,
		})
	}

	switch d.effect {
	case effectDefrost:
		ts := m.engine.StartDefrost()
		m.mutateContext(func(c *models.OperatingContext) { c.LastDefrost = ts })
		m.scheduleDefrostEnd()
		if m.log != nil {
			m.log.Infow("defrost cycle started", "duration_s", int(m.engine.DefrostDuration().Seconds()))
		}
		m.record(models.EventDefrost, "defrost cycle started", map[string]any{
			"started_at": ts, "duration_s": int(m.engine.DefrostDuration().Seconds()),
		})
	case effectHeat:
		if changed || forceExec {
			m.dispatchExecution(effectHeat, m.overrideSnapshot())
		}
	case effectCool:
		// The per-unit cooling strategy is sensor-driven, so it
		// re-runs on every evaluation while cooling is active.
		m.dispatchExecution(effectCool, nil)
	case effectOff:
		if changed || forceExec {
			m.dispatchExecution(effectOff, nil)
		}
	}
}

// dispatchExecution fans unit commands out off the loop goroutine.
// The machine has already committed to the mode; failures are
// recorded but never roll the logical state back.
func (m *Machine) dispatchExecution(eff effect, override *models.ManualOverride) {
	m.execWG.Add(1)
	go func() {
		defer m.execWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), executeTimeout)
		defer cancel()

		var outcomes []models.UnitOutcome
		switch eff {
		case effectHeat:
			outcomes = m.exec.ExecuteHeating(ctx, override)
		case effectCool:
			outcomes = m.exec.ExecuteCooling(ctx)
		case effectOff:
			outcomes = m.exec.ExecuteOff(ctx)
		default:
			return
		}

		for _, o := range outcomes {
			if !o.Failed() {
				continue
			}
			if m.log != nil {
				m.log.Errorw("unit command failed", "entity", o.EntityID, "action", o.Action, "err", o.Err)
			}
			m.record(models.EventCommandFailure, "unit command failed", map[string]any{
				"entity": o.EntityID, "action": o.Action, "err": o.Error,
			})
			if m.notifier != nil {
				m.notifier.UnitCommandFailed(o.EntityID, o.Err)
			}
		}
	}()
}

// scheduleDefrostEnd arms the duration timer for the current defrost
// cycle. The timer is keyed to the state entry: an OFF or override
// that leaves defrosting cancels it before it fires.
func (m *Machine) scheduleDefrostEnd() {
	m.cancelDefrostTimer()
	dur := m.engine.DefrostDuration()
	if dur <= 0 {
		return
	}
	m.defrostTimer = time.AfterFunc(dur, func() {
		select {
		case m.mailbox <- machineEvent{kind: evDefrostComplete}:
		case <-m.quit:
		}
	})
}

func (m *Machine) cancelDefrostTimer() {
	if m.defrostTimer != nil {
		m.defrostTimer.Stop()
		m.defrostTimer = nil
	}
}

func (m *Machine) setState(s models.State) (prev models.State) {
	m.mu.Lock()
	prev = m.state
	m.state = s
	m.mu.Unlock()
	return prev
}

func (m *Machine) currentState() models.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) mutateContext(fn func(*models.OperatingContext)) {
	m.mu.Lock()
	fn(&m.octx)
	m.mu.Unlock()
}

func (m *Machine) contextSnapshot() models.OperatingContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneContext(m.octx)
}

func (m *Machine) overrideSnapshot() *models.ManualOverride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.octx.Override == nil {
		return nil
	}
	ov := *m.octx.Override
	if m.octx.Override.TargetTemp != nil {
		t := *m.octx.Override.TargetTemp
		ov.TargetTemp = &t
	}
	return &ov
}

func (m *Machine) record(typ, desc string, meta map[string]any) {
	if m.recorder == nil {
		return
	}
	m.recorder.Record(context.Background(), models.HvacEvent{
		OccurredAt:  m.now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
}

func cloneContext(c models.OperatingContext) models.OperatingContext {
	out := c
	if c.Indoor != nil {
		v := *c.Indoor
		out.Indoor = &v
	}
	if c.Outdoor != nil {
		v := *c.Outdoor
		out.Outdoor = &v
	}
	if c.Override != nil {
		ov := *c.Override
		if c.Override.TargetTemp != nil {
			t := *c.Override.TargetTemp
			ov.TargetTemp = &t
		}
		out.Override = &ov
	}
	return out
}
