// Package control issues actuator commands and tracks the optimistic
// on/off state of each (device, actuator) pair. The UI flips a toggle
// immediately; the flip is committed or rolled back when the backend
// call resolves, and that lifecycle is an explicit state machine
// instead of ad-hoc per-button rollback code.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Actuator identifies a controllable peripheral on a sensor unit.
type Actuator string

const (
	ActuatorHumidifier Actuator = "humidifier"
	ActuatorUV         Actuator = "uv"
	ActuatorFan        Actuator = "fan"
	ActuatorWaterPump  Actuator = "waterpump"
)

// waterPumpRunSeconds is how long the pump runs per activation.
const waterPumpRunSeconds = 3

// Actuators lists every supported actuator.
var Actuators = []Actuator{ActuatorHumidifier, ActuatorUV, ActuatorFan, ActuatorWaterPump}

// Payload builds the backend command payload for switching the
// actuator on or off. Field names are the device firmware's.
func (a Actuator) Payload(on bool) map[string]int {
	flag := 0
	if on {
		flag = 1
	}
	switch a {
	case ActuatorHumidifier:
		return map[string]int{"humidifier_action": flag}
	case ActuatorUV:
		return map[string]int{"flash_en": flag}
	case ActuatorFan:
		return map[string]int{"fan_action": flag}
	case ActuatorWaterPump:
		if on {
			return map[string]int{"water_pump_action": 1, "water_pump_duration": waterPumpRunSeconds}
		}
		return map[string]int{"water_pump_action": 0}
	default:
		return nil
	}
}

// Valid reports whether a is a known actuator.
func (a Actuator) Valid() bool {
	for _, known := range Actuators {
		if a == known {
			return true
		}
	}
	return false
}

// ToggleState is the lifecycle of one optimistic toggle.
type ToggleState string

const (
	StateIdle       ToggleState = "idle"
	StatePending    ToggleState = "pending"
	StateCommitted  ToggleState = "committed"
	StateRolledBack ToggleState = "rolled_back"
)

// Predefined errors.
var (
	ErrUnknownActuator = errors.New("control: unknown actuator")
	ErrTogglePending   = errors.New("control: toggle already pending")
	ErrEmptyDevice     = errors.New("control: device code is empty")
)

// Commander sends an actuator command to a device.
type Commander interface {
	ControlDevice(ctx context.Context, deviceID string, payload map[string]int) error
}

// Toggle is the tracked state of one (device, actuator) pair.
type Toggle struct {
	On    bool        `json:"on"`
	State ToggleState `json:"state"`
}

// Panel tracks toggle state for all devices and drives the
// Idle -> Pending -> Committed/RolledBack transitions around backend
// calls. Safe for concurrent use.
type Panel struct {
	commander Commander
	logger    zerolog.Logger

	mu      sync.Mutex
	toggles map[string]*Toggle
}

// NewPanel creates a Panel sending commands through commander.
func NewPanel(commander Commander, logger zerolog.Logger) *Panel {
	return &Panel{
		commander: commander,
		logger:    logger.With().Str("component", "control").Logger(),
		toggles:   make(map[string]*Toggle),
	}
}

// Get returns the current toggle for the pair; zero value when never
// touched.
func (p *Panel) Get(deviceCode string, actuator Actuator) Toggle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t := p.toggles[toggleKey(deviceCode, actuator)]; t != nil {
		return *t
	}
	return Toggle{State: StateIdle}
}

// Flip optimistically inverts the toggle, sends the command, and
// commits or rolls back based on the outcome. The Pending transition
// happens synchronously before the call; a pair with a flip already
// pending is rejected rather than queued.
func (p *Panel) Flip(ctx context.Context, deviceCode string, actuator Actuator) (Toggle, error) {
	if deviceCode == "" {
		return Toggle{}, ErrEmptyDevice
	}
	if !actuator.Valid() {
		return Toggle{}, ErrUnknownActuator
	}
	key := toggleKey(deviceCode, actuator)

	p.mu.Lock()
	t := p.toggles[key]
	if t == nil {
		t = &Toggle{State: StateIdle}
		p.toggles[key] = t
	}
	if t.State == StatePending {
		cur := *t
		p.mu.Unlock()
		return cur, ErrTogglePending
	}
	prev := t.On
	t.On = !t.On
	t.State = StatePending
	next := t.On
	p.mu.Unlock()

	err := p.commander.ControlDevice(ctx, deviceCode, actuator.Payload(next))

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		t.On = prev
		t.State = StateRolledBack
		p.logger.Warn().Err(err).Str("device", deviceCode).Str("actuator", string(actuator)).
			Msg("control command failed, rolled back")
		return *t, fmt.Errorf("sending %s command: %w", actuator, err)
	}
	t.State = StateCommitted
	return *t, nil
}

func toggleKey(deviceCode string, actuator Actuator) string {
	return deviceCode + "-" + string(actuator)
}
