package homeassistant

import (
	"context"
	"fmt"
	"sync"

	"github.com/jluzny/hag/internal/models"
)

// IssuedCommand captures one IssueCommand call for assertions.
type IssuedCommand struct {
	EntityID   string
	Mode       models.HvacMode
	TargetTemp *float64
	Preset     string
}

// Fake is an in-memory stand-in for the websocket client, used by
// tests and by the controller wiring when no platform is configured.
type Fake struct {
	mu       sync.Mutex
	sensors  map[string]float64
	failures map[string]error
	commands []IssuedCommand
	updates  chan SensorUpdate
}

func NewFake() *Fake {
	return &Fake{
		sensors:  make(map[string]float64),
		failures: make(map[string]error),
		updates:  make(chan SensorUpdate, updateBuffer),
	}
}

// SetSensor sets the value ReadSensor reports for an entity.
func (f *Fake) SetSensor(entityID string, value float64) {
	f.mu.Lock()
	f.sensors[entityID] = value
	f.mu.Unlock()
}

// FailCommands makes IssueCommand return err for the given entity.
func (f *Fake) FailCommands(entityID string, err error) {
	f.mu.Lock()
	f.failures[entityID] = err
	f.mu.Unlock()
}

// Push injects a sensor-changed notification into the feed.
func (f *Fake) Push(entityID, value string) {
	f.updates <- SensorUpdate{EntityID: entityID, Value: value}
}

// Commands returns a copy of every command issued so far.
func (f *Fake) Commands() []IssuedCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]IssuedCommand, len(f.commands))
	copy(out, f.commands)
	return out
}

func (f *Fake) Updates() <-chan SensorUpdate {
	return f.updates
}

func (f *Fake) ReadSensor(_ context.Context, entityID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sensors[entityID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSensor, entityID)
	}
	return v, nil
}

func (f *Fake) IssueCommand(_ context.Context, entityID string, mode models.HvacMode, targetTemp *float64, preset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[entityID]; ok {
		return err
	}
	cmd := IssuedCommand{EntityID: entityID, Mode: mode, Preset: preset}
	if targetTemp != nil {
		t := *targetTemp
		cmd.TargetTemp = &t
	}
	f.commands = append(f.commands, cmd)
	return nil
}
