package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jluzny/hag/internal/homeassistant"
	"github.com/jluzny/hag/internal/hvac"
	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/models"
)

// ControllerService bridges the outside world and the state machine.
// Sensor updates arriving concurrently from the transport feed are
// serialized into the machine's mailbox here.
type ControllerService struct {
	machine *hvac.Machine
	feed    <-chan homeassistant.SensorUpdate
	sensors SensorIDs
	log     *logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewControllerService(machine *hvac.Machine, feed <-chan homeassistant.SensorUpdate, sensors SensorIDs, log *logger.Logger) *ControllerService {
	return &ControllerService{
		machine: machine,
		feed:    feed,
		sensors: sensors,
		log:     log,
	}
}

var _ Controller = (*ControllerService)(nil)

// Start brings the state machine up and begins pumping the sensor feed.
func (s *ControllerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("controller already started")
	}
	if err := s.machine.Start(); err != nil {
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.pump(pumpCtx)

	s.started = true
	return nil
}

// Stop halts the feed pump and shuts down the state machine.
func (s *ControllerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("controller is not started")
	}
	s.cancel()
	s.wg.Wait()
	s.started = false
	return s.machine.Stop()
}

// pump translates raw sensor-changed notifications into condition
// updates. Only the whole-system indoor/outdoor sensors drive
// evaluation; per-unit sensors are read on demand by the execution
// layer.
func (s *ControllerService) pump(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-s.feed:
			if !ok {
				return
			}
			s.handleUpdate(ctx, upd)
		}
	}
}

func (s *ControllerService) handleUpdate(ctx context.Context, upd homeassistant.SensorUpdate) {
	var cond models.Condition
	switch upd.EntityID {
	case s.sensors.Indoor:
		v, err := strconv.ParseFloat(upd.Value, 64)
		if err != nil {
			s.log.Debugw("ignoring non-numeric indoor reading", "value", upd.Value)
			return
		}
		cond.Indoor = &v
	case s.sensors.Outdoor:
		v, err := strconv.ParseFloat(upd.Value, 64)
		if err != nil {
			s.log.Debugw("ignoring non-numeric outdoor reading", "value", upd.Value)
			return
		}
		cond.Outdoor = &v
	default:
		return
	}

	if err := s.machine.UpdateConditions(ctx, cond, true); err != nil {
		s.log.Warnw("failed to deliver sensor update", "entity", upd.EntityID, "err", err)
	}
}

// ManualOverride validates and forwards an operator directive.
func (s *ControllerService) ManualOverride(ctx context.Context, p OverrideParams) error {
	mode := models.HvacMode(p.Mode)
	switch mode {
	case models.ModeHeat, models.ModeCool, models.ModeOff:
	default:
		return fmt.Errorf("invalid mode %q: must be heat, cool, or off", p.Mode)
	}
	return s.machine.ManualOverride(ctx, mode, p.TargetTemp, p.Preset)
}

// Off switches everything off and returns the machine to idle.
func (s *ControllerService) Off(ctx context.Context) error {
	return s.machine.Off(ctx)
}

// SendCondition injects conditions directly, chaining an evaluation.
func (s *ControllerService) SendCondition(ctx context.Context, c models.Condition) error {
	if c.Hour != nil && (*c.Hour < 0 || *c.Hour > 23) {
		return fmt.Errorf("hour must be within 0..23, got %d", *c.Hour)
	}
	return s.machine.UpdateConditions(ctx, c, true)
}

// Status returns the current state snapshot.
func (s *ControllerService) Status(ctx context.Context) (models.Status, error) {
	return s.machine.Status(), nil
}
