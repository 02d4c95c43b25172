package hvac

import (
	"fmt"
	"sync"
	"time"

	"github.com/jluzny/hag/internal/models"
)

// EngineConfig carries the immutable threshold model.
type EngineConfig struct {
	Heating     models.ThresholdBand
	Cooling     models.ThresholdBand
	ActiveHours models.ActiveHours
	Defrost     *models.DefrostConfig
	CacheTTL    time.Duration
}

// Engine maps current conditions to an EvaluationResult. It is pure
// with respect to its explicit inputs; the only internal state is the
// defrost cooldown timestamp, mutated by StartDefrost, and the
// memoization cache.
type Engine struct {
	cfg EngineConfig
	now func() time.Time

	mu          sync.Mutex
	lastDefrost time.Time
	cache       *resultCache
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithClock injects a clock, used by tests to simulate time.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates the threshold model and builds an engine.
// Threshold ordering errors fail fast here.
func NewEngine(cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if cfg.Heating.IndoorMin >= cfg.Heating.IndoorMax {
		return nil, fmt.Errorf("heating band: indoor_min %.2f >= indoor_max %.2f", cfg.Heating.IndoorMin, cfg.Heating.IndoorMax)
	}
	if cfg.Cooling.IndoorMin >= cfg.Cooling.IndoorMax {
		return nil, fmt.Errorf("cooling band: indoor_min %.2f >= indoor_max %.2f", cfg.Cooling.IndoorMin, cfg.Cooling.IndoorMax)
	}
	if cfg.Defrost != nil && cfg.Defrost.PeriodSeconds <= 0 {
		return nil, fmt.Errorf("defrost period must be positive, got %d", cfg.Defrost.PeriodSeconds)
	}
	e := &Engine{
		cfg:   cfg,
		now:   time.Now,
		cache: newResultCache(cfg.CacheTTL),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate computes the decision for the given context. currentState
// is needed for the cooling-cycle-complete turn-off check. It never
// errors: an incomplete context yields an all-false result with
// no_action_needed, leaving "not enough data" vs "comfortable" to the
// caller.
func (e *Engine) Evaluate(oc models.OperatingContext, currentState models.State) models.EvaluationResult {
	if !oc.Complete() {
		return models.EvaluationResult{Reason: models.ReasonNoActionNeeded}
	}

	key := evaluationKey(oc, currentState)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if res, ok := e.cache.get(key, now); ok {
		return res
	}
	res := e.compute(*oc.Indoor, *oc.Outdoor, oc, currentState, now)
	e.cache.put(key, res, now)
	return res
}

// StartDefrost records the start of a defrost cycle and invalidates
// memoized results, since needsDefrost depends on it. Returns the
// recorded timestamp.
func (e *Engine) StartDefrost() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastDefrost = e.now()
	e.cache.invalidate()
	return e.lastDefrost
}

// LastDefrost returns the start time of the most recent defrost cycle,
// zero if none has run.
func (e *Engine) LastDefrost() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDefrost
}

// DefrostDuration returns the configured cycle duration, zero when
// defrost is not configured.
func (e *Engine) DefrostDuration() time.Duration {
	if e.cfg.Defrost == nil {
		return 0
	}
	return time.Duration(e.cfg.Defrost.DurationSeconds) * time.Second
}

// compute runs the four independent checks. Caller holds e.mu.
func (e *Engine) compute(indoor, outdoor float64, oc models.OperatingContext, currentState models.State, now time.Time) models.EvaluationResult {
	withinHours := e.cfg.ActiveHours.Contains(oc.Hour, oc.IsWeekday)

	res := models.EvaluationResult{
		ShouldHeat:    e.shouldHeat(indoor, outdoor, withinHours),
		ShouldCool:    e.shouldCool(indoor, outdoor, withinHours),
		NeedsDefrost:  e.needsDefrost(outdoor, now),
		ShouldTurnOff: e.shouldTurnOff(indoor, withinHours, currentState, oc.Override),
	}

	switch {
	case res.ShouldTurnOff:
		res.Reason = models.ReasonTurnOffRequired
	case res.NeedsDefrost:
		res.Reason = models.ReasonDefrostRequired
	case res.ShouldHeat:
		res.Reason = models.ReasonHeatingRequired
	case res.ShouldCool:
		res.Reason = models.ReasonCoolingRequired
	default:
		res.Reason = models.ReasonNoActionNeeded
	}
	return res
}

func (e *Engine) shouldHeat(indoor, outdoor float64, withinHours bool) bool {
	h := e.cfg.Heating
	if indoor >= h.IndoorMax {
		return false
	}
	if outdoor < h.OutdoorMin || outdoor > h.OutdoorMax {
		return false
	}
	if !withinHours {
		return false
	}
	return indoor < h.IndoorMin
}

func (e *Engine) shouldCool(indoor, outdoor float64, withinHours bool) bool {
	c := e.cfg.Cooling
	if indoor <= c.IndoorMin {
		return false
	}
	if outdoor < c.OutdoorMin || outdoor > c.OutdoorMax {
		return false
	}
	if !withinHours {
		return false
	}
	return indoor > c.IndoorMin
}

// needsDefrost gates on outdoor temperature and the minimum inter-cycle
// period. Caller holds e.mu.
func (e *Engine) needsDefrost(outdoor float64, now time.Time) bool {
	d := e.cfg.Defrost
	if d == nil {
		return false
	}
	if outdoor > d.TemperatureThreshold {
		return false
	}
	if !e.lastDefrost.IsZero() {
		elapsed := now.Sub(e.lastDefrost)
		// A negative elapsed means the clock moved backwards; treat
		// the cooldown as still pending.
		if elapsed < time.Duration(d.PeriodSeconds)*time.Second {
			return false
		}
	}
	return true
}

// shouldTurnOff applies maximum-threshold hysteresis: temperatures
// strictly between the bands of either mode must NOT trigger turn-off.
// Cycle-complete checks are gated on the matching cycle being active,
// otherwise a warm room would suppress cooling before it could start.
// An active heat/cool override outranks them entirely: the operator's
// directive runs until an explicit off, a replacing override, or the
// end of the active window.
func (e *Engine) shouldTurnOff(indoor float64, withinHours bool, currentState models.State, override *models.ManualOverride) bool {
	if !withinHours {
		return true
	}
	if override != nil && (override.Mode == models.ModeHeat || override.Mode == models.ModeCool) {
		return false
	}
	heatingCycle := currentState == models.StateHeating || currentState == models.StateDefrosting
	if heatingCycle && indoor >= e.cfg.Heating.IndoorMax {
		return true
	}
	if currentState == models.StateCooling && indoor <= e.cfg.Cooling.IndoorMin {
		return true
	}
	return false
}

// evaluationKey is the canonical serialization of the inputs that
// influence a decision. Two contexts with equal keys must evaluate
// identically within the cache TTL.
func evaluationKey(oc models.OperatingContext, currentState models.State) string {
	override := "-"
	if oc.Override != nil {
		override = string(oc.Override.Mode)
		if oc.Override.TargetTemp != nil {
			override += fmt.Sprintf("@%.2f", *oc.Override.TargetTemp)
		}
	}
	return fmt.Sprintf("%.2f|%.2f|%d|%t|%s|%s",
		*oc.Indoor, *oc.Outdoor, oc.Hour, oc.IsWeekday, override, currentState)
}
