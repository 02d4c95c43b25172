package models

import "time"

// SystemMode constrains which directions the controller may take
// automatically or accept as manual requests.
type SystemMode string

const (
	SystemAuto     SystemMode = "auto"
	SystemHeatOnly SystemMode = "heat_only"
	SystemCoolOnly SystemMode = "cool_only"
	SystemOff      SystemMode = "off"
)

// AllowsHeat reports whether heating is permitted under this system mode.
func (m SystemMode) AllowsHeat() bool {
	return m == SystemAuto || m == SystemHeatOnly
}

// AllowsCool reports whether cooling is permitted under this system mode.
func (m SystemMode) AllowsCool() bool {
	return m == SystemAuto || m == SystemCoolOnly
}

// HvacMode is the command mode issued to a physical unit.
type HvacMode string

const (
	ModeHeat HvacMode = "heat"
	ModeCool HvacMode = "cool"
	ModeOff  HvacMode = "off"
)

// State names of the controller state machine. There is no separate
// "off" state; off is represented by idle.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateHeating    State = "heating"
	StateCooling    State = "cooling"
	StateDefrosting State = "defrosting"
)

// ThresholdBand holds the per-mode hysteresis band, outdoor operating
// range, and the display target sent to the units. The display target
// need not equal either bound; the band itself drives on/off decisions.
type ThresholdBand struct {
	IndoorMin  float64 `json:"indoor_min" mapstructure:"indoor_min"`
	IndoorMax  float64 `json:"indoor_max" mapstructure:"indoor_max"`
	OutdoorMin float64 `json:"outdoor_min" mapstructure:"outdoor_min"`
	OutdoorMax float64 `json:"outdoor_max" mapstructure:"outdoor_max"`
	TargetTemp float64 `json:"target_temp" mapstructure:"target_temp"`
	Preset     string  `json:"preset,omitempty" mapstructure:"preset"`
}

// ActiveHours is the daily window during which automatic heating and
// cooling may run. Weekdays may start earlier than weekends.
// A hour h is active when start <= h < end.
type ActiveHours struct {
	Start        int `json:"start" mapstructure:"start"`
	StartWeekday int `json:"start_weekday" mapstructure:"start_weekday"`
	End          int `json:"end" mapstructure:"end"`
}

// Contains reports whether the given hour falls inside the window.
func (a ActiveHours) Contains(hour int, weekday bool) bool {
	start := a.Start
	if weekday {
		start = a.StartWeekday
	}
	return hour >= start && hour < a.End
}

// DefrostConfig gates the heating-only defrost cycle. A new cycle may
// not begin until PeriodSeconds have elapsed since the previous start.
type DefrostConfig struct {
	TemperatureThreshold float64 `json:"temperature_threshold" mapstructure:"temperature_threshold"`
	PeriodSeconds        int     `json:"period_seconds" mapstructure:"period_seconds"`
	DurationSeconds      int     `json:"duration_seconds" mapstructure:"duration_seconds"`
}

// HvacEntity is a physical controllable unit. Read from configuration
// at startup and immutable thereafter.
type HvacEntity struct {
	EntityID              string  `json:"entity_id" mapstructure:"entity_id"`
	Enabled               bool    `json:"enabled" mapstructure:"enabled"`
	TemperatureCorrection float64 `json:"temperature_correction" mapstructure:"temperature_correction"`
}

// ManualOverride is an operator directive. It is sticky: cleared only
// by an explicit off, a replacing override, or an evaluation whose
// guard chain reaches a branch that does not re-affirm it.
type ManualOverride struct {
	Mode       HvacMode  `json:"mode"`
	TargetTemp *float64  `json:"target_temp,omitempty"`
	Preset     string    `json:"preset,omitempty"`
	SetAt      time.Time `json:"set_at"`
}

// Condition is a partial sensor/clock update merged into the operating
// context. Nil fields are left untouched.
type Condition struct {
	Indoor    *float64 `json:"indoor,omitempty"`
	Outdoor   *float64 `json:"outdoor,omitempty"`
	Hour      *int     `json:"hour,omitempty"`
	IsWeekday *bool    `json:"is_weekday,omitempty"`
}

// OperatingContext is the mutable context owned exclusively by the
// state machine. Indoor and outdoor temperature are both required
// before any automatic evaluation may recommend heat or cool.
type OperatingContext struct {
	Indoor      *float64        `json:"indoor,omitempty"`
	Outdoor     *float64        `json:"outdoor,omitempty"`
	Hour        int             `json:"hour"`
	IsWeekday   bool            `json:"is_weekday"`
	Override    *ManualOverride `json:"override,omitempty"`
	LastDefrost time.Time       `json:"last_defrost,omitempty"`
}

// Complete reports whether both temperatures have been observed.
func (c OperatingContext) Complete() bool {
	return c.Indoor != nil && c.Outdoor != nil
}

// ReasonCode is the machine-checkable justification attached to an
// evaluation. Precedence: turn-off > defrost > heat > cool > no-action.
type ReasonCode string

const (
	ReasonTurnOffRequired ReasonCode = "turn_off_required"
	ReasonDefrostRequired ReasonCode = "defrost_required"
	ReasonHeatingRequired ReasonCode = "heating_required"
	ReasonCoolingRequired ReasonCode = "cooling_required"
	ReasonNoActionNeeded  ReasonCode = "no_action_needed"
)

// EvaluationResult is the transient outcome of one evaluation. All
// four booleans are computed independently; Reason follows precedence.
type EvaluationResult struct {
	ShouldHeat    bool       `json:"should_heat"`
	ShouldCool    bool       `json:"should_cool"`
	NeedsDefrost  bool       `json:"needs_defrost"`
	ShouldTurnOff bool       `json:"should_turn_off"`
	Reason        ReasonCode `json:"reason"`
}

// UnitOutcome reports the result of commanding one physical unit.
type UnitOutcome struct {
	EntityID string `json:"entity_id"`
	Action   string `json:"action"` // heat | cool | off | unchanged
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the unit command errored.
func (o UnitOutcome) Failed() bool { return o.Err != nil }

// Status is the snapshot exposed to callers.
type Status struct {
	CurrentState State            `json:"current_state"`
	Context      OperatingContext `json:"context"`
	SystemMode   SystemMode       `json:"system_mode"`
	CanHeat      bool             `json:"can_heat"`
	CanCool      bool             `json:"can_cool"`
}

// Event types recorded in the append-only log.
const (
	EventTransition     = "TRANSITION"
	EventOverride       = "OVERRIDE"
	EventOff            = "OFF"
	EventDefrost        = "DEFROST"
	EventCommandFailure = "COMMAND_FAILURE"
	EventError          = "ERROR"
)

// HvacEvent is a single log entry.
type HvacEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}

// User is an API account allowed to control the system.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
