// Package config defines the system configuration: the fleet of managed
// devices and the button actions wired to them. Configuration is loaded from
// YAML (or JSON, which YAML subsumes) and validated before it reaches the
// orchestrator.
package config

import (
	"fmt"

	"github.com/lsh-protocol/lshd/pkg/protocol"
)

// Actor targets actuators on one LSH device.
type Actor struct {
	// Name is the target device name.
	Name string `yaml:"name" json:"name"`

	// AllActuators targets every actuator on the device. When true,
	// Actuators is ignored.
	AllActuators bool `yaml:"allActuators" json:"allActuators"`

	// Actuators lists the targeted actuator identifiers.
	Actuators []string `yaml:"actuators" json:"actuators"`
}

// ButtonAction wires one button event to a group of actors.
type ButtonAction struct {
	// ID is the button identifier on the source device.
	ID string `yaml:"id" json:"id"`

	// Actors are the targeted LSH devices.
	Actors []Actor `yaml:"actors" json:"actors"`

	// OtherActors are non-LSH actuators reached through an external bridge.
	OtherActors []string `yaml:"otherActors" json:"otherActors"`
}

// Device configures one managed device.
type Device struct {
	// Name is the device's stable identifier on the bus.
	Name string `yaml:"name" json:"name"`

	// LongClickButtons are the actions for long presses.
	LongClickButtons []ButtonAction `yaml:"longClickButtons" json:"longClickButtons"`

	// SuperLongClickButtons are the actions for super-long presses.
	SuperLongClickButtons []ButtonAction `yaml:"superLongClickButtons" json:"superLongClickButtons"`
}

// SystemConfig is the root of the fleet configuration.
type SystemConfig struct {
	Devices []Device `yaml:"devices" json:"devices"`
}

// DeviceNames returns the configured device names in declaration order.
func (c *SystemConfig) DeviceNames() []string {
	names := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		names = append(names, d.Name)
	}
	return names
}

// Device returns the configuration of a device by name.
func (c *SystemConfig) Device(name string) (*Device, bool) {
	for i := range c.Devices {
		if c.Devices[i].Name == name {
			return &c.Devices[i], true
		}
	}
	return nil, false
}

// ButtonAction returns the action wired to a button for the given click
// type, or false if none is configured.
func (d *Device) ButtonAction(ct protocol.ClickType, buttonID string) (*ButtonAction, bool) {
	var buttons []ButtonAction
	switch ct {
	case protocol.ClickLong:
		buttons = d.LongClickButtons
	case protocol.ClickSuperLong:
		buttons = d.SuperLongClickButtons
	default:
		return nil, false
	}
	for i := range buttons {
		if buttons[i].ID == buttonID {
			return &buttons[i], true
		}
	}
	return nil, false
}

// Validate checks required fields. Button arrays are optional; device and
// button identifiers are not.
func (c *SystemConfig) Validate() error {
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			return &LoadError{Message: fmt.Sprintf("devices[%d]: name is required", i)}
		}
		if seen[d.Name] {
			return &LoadError{Message: fmt.Sprintf("devices[%d]: duplicate device name %q", i, d.Name)}
		}
		seen[d.Name] = true
		if err := validateButtons(d.Name, "longClickButtons", d.LongClickButtons); err != nil {
			return err
		}
		if err := validateButtons(d.Name, "superLongClickButtons", d.SuperLongClickButtons); err != nil {
			return err
		}
	}
	return nil
}

func validateButtons(device, field string, buttons []ButtonAction) error {
	for i, b := range buttons {
		if b.ID == "" {
			return &LoadError{Message: fmt.Sprintf("device %q: %s[%d]: id is required", device, field, i)}
		}
		for j, a := range b.Actors {
			if a.Name == "" {
				return &LoadError{Message: fmt.Sprintf("device %q: %s[%d].actors[%d]: name is required", device, field, i, j)}
			}
		}
	}
	return nil
}
