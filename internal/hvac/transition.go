package hvac

import "github.com/jluzny/hag/internal/models"

type effect int

const (
	effectNone effect = iota
	effectHeat
	effectCool
	effectOff
	effectDefrost
)

// decision is the outcome of one pass through the guard chain.
type decision struct {
	next          models.State
	effect        effect
	clearOverride bool
}

// decide applies the evaluation guard chain, in precedence order:
// manual-off, turn-off, defrost (from heating only), heat override,
// cool override, automatic heat, automatic cool, stay in the running
// cycle, idle. It is pure so the precedence rules are testable without
// the running machine.
//
// An active override is sticky: it is cleared only when the chain
// reaches a branch that does not re-affirm it.
func decide(current models.State, res models.EvaluationResult, override *models.ManualOverride, systemMode models.SystemMode) decision {
	if override != nil && override.Mode == models.ModeOff {
		return decision{next: models.StateIdle, effect: effectOff}
	}
	if res.ShouldTurnOff {
		return decision{next: models.StateIdle, effect: effectOff, clearOverride: true}
	}
	if current == models.StateHeating && res.NeedsDefrost {
		return decision{next: models.StateDefrosting, effect: effectDefrost}
	}
	if override != nil && override.Mode == models.ModeHeat {
		return decision{next: models.StateHeating, effect: effectHeat}
	}
	if override != nil && override.Mode == models.ModeCool {
		return decision{next: models.StateCooling, effect: effectCool}
	}
	if current == models.StateDefrosting {
		// A routine sensor update must not abort a running defrost
		// cycle; only the guards above may preempt it. The duration
		// timer ends the cycle.
		return decision{next: models.StateDefrosting, effect: effectNone}
	}
	if res.ShouldHeat && systemMode.AllowsHeat() {
		return decision{next: models.StateHeating, effect: effectHeat, clearOverride: true}
	}
	if res.ShouldCool && systemMode.AllowsCool() {
		return decision{next: models.StateCooling, effect: effectCool, clearOverride: true}
	}
	if current == models.StateHeating || current == models.StateCooling {
		// An in-band evaluation keeps the running cycle; only the
		// turn-off guards above end it.
		return decision{next: current, effect: effectNone}
	}
	return decision{next: models.StateIdle, effect: effectNone, clearOverride: true}
}
