package hvac

import (
	"context"
	"strings"
	"sync"

	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/models"
)

// Commander is the slice of the home-automation transport the
// execution layer consumes.
type Commander interface {
	ReadSensor(ctx context.Context, entityID string) (float64, error)
	IssueCommand(ctx context.Context, entityID string, mode models.HvacMode, targetTemp *float64, preset string) error
}

// Executor issues commands to the physical units for a target mode.
type Executor interface {
	ExecuteHeating(ctx context.Context, override *models.ManualOverride) []models.UnitOutcome
	ExecuteCooling(ctx context.Context) []models.UnitOutcome
	ExecuteOff(ctx context.Context) []models.UnitOutcome
}

// UnitExecutor fans commands out to every enabled unit concurrently.
// A failure on one unit never prevents attempting the others.
type UnitExecutor struct {
	client   Commander
	entities []models.HvacEntity
	heating  models.ThresholdBand
	cooling  models.ThresholdBand
	log      *logger.Logger
}

func NewUnitExecutor(client Commander, entities []models.HvacEntity, heating, cooling models.ThresholdBand, log *logger.Logger) *UnitExecutor {
	return &UnitExecutor{
		client:   client,
		entities: entities,
		heating:  heating,
		cooling:  cooling,
		log:      log,
	}
}

var _ Executor = (*UnitExecutor)(nil)

// ExecuteHeating sends a uniform heating command: the configured
// target (or the override's, when present) plus each unit's
// calibration offset.
func (x *UnitExecutor) ExecuteHeating(ctx context.Context, override *models.ManualOverride) []models.UnitOutcome {
	target := x.heating.TargetTemp
	preset := x.heating.Preset
	if override != nil {
		if override.TargetTemp != nil {
			target = *override.TargetTemp
		}
		if override.Preset != "" {
			preset = override.Preset
		}
	}

	return x.fanOut(func(ctx context.Context, e models.HvacEntity) models.UnitOutcome {
		t := target + e.TemperatureCorrection
		err := x.client.IssueCommand(ctx, e.EntityID, models.ModeHeat, &t, preset)
		return outcome(e.EntityID, string(models.ModeHeat), err)
	})(ctx)
}

// ExecuteCooling applies the individual-unit strategy: each enabled
// unit's own room sensor decides on, off, or unchanged, independently
// of the global cooling state.
func (x *UnitExecutor) ExecuteCooling(ctx context.Context) []models.UnitOutcome {
	return x.fanOut(func(ctx context.Context, e models.HvacEntity) models.UnitOutcome {
		room, err := x.client.ReadSensor(ctx, UnitSensorID(e.EntityID))
		if err != nil {
			return outcome(e.EntityID, "unchanged", err)
		}
		switch {
		case room > x.cooling.IndoorMax:
			t := x.cooling.TargetTemp + e.TemperatureCorrection
			err := x.client.IssueCommand(ctx, e.EntityID, models.ModeCool, &t, x.cooling.Preset)
			return outcome(e.EntityID, string(models.ModeCool), err)
		case room < x.cooling.IndoorMin:
			err := x.client.IssueCommand(ctx, e.EntityID, models.ModeOff, nil, "")
			return outcome(e.EntityID, string(models.ModeOff), err)
		default:
			return outcome(e.EntityID, "unchanged", nil)
		}
	})(ctx)
}

// ExecuteOff unconditionally switches every enabled unit off.
func (x *UnitExecutor) ExecuteOff(ctx context.Context) []models.UnitOutcome {
	return x.fanOut(func(ctx context.Context, e models.HvacEntity) models.UnitOutcome {
		err := x.client.IssueCommand(ctx, e.EntityID, models.ModeOff, nil, "")
		return outcome(e.EntityID, string(models.ModeOff), err)
	})(ctx)
}

// fanOut runs op for every enabled unit in its own goroutine and
// collects outcomes in entity order. Errors are logged per unit and
// isolated from the rest of the batch.
func (x *UnitExecutor) fanOut(op func(context.Context, models.HvacEntity) models.UnitOutcome) func(context.Context) []models.UnitOutcome {
	return func(ctx context.Context) []models.UnitOutcome {
		enabled := make([]models.HvacEntity, 0, len(x.entities))
		for _, e := range x.entities {
			if e.Enabled {
				enabled = append(enabled, e)
			}
		}

		outcomes := make([]models.UnitOutcome, len(enabled))
		var wg sync.WaitGroup
		for i, e := range enabled {
			wg.Add(1)
			go func(i int, e models.HvacEntity) {
				defer wg.Done()
				outcomes[i] = op(ctx, e)
			}(i, e)
		}
		wg.Wait()

		for _, o := range outcomes {
			if o.Failed() && x.log != nil {
				x.log.Errorw("unit command failed", "entity", o.EntityID, "action", o.Action, "err", o.Err)
			}
		}
		return outcomes
	}
}

func outcome(entityID, action string, err error) models.UnitOutcome {
	o := models.UnitOutcome{EntityID: entityID, Action: action, Err: err}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// UnitSensorID derives a unit's own temperature sensor entity from its
// climate entity id, e.g. "climate.living_room" ->
// "sensor.living_room_temperature".
func UnitSensorID(entityID string) string {
	name := entityID
	if i := strings.Index(entityID, "."); i >= 0 {
		name = entityID[i+1:]
	}
	return "sensor." + name + "_temperature"
}
