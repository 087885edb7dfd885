package registry

import (
	"fmt"
	"strings"

	"github.com/lsh-protocol/lshd/pkg/config"
)

// ContextReader looks up the boolean state of an external (non-LSH)
// actuator by key. Implementations must be side-effect-free; tests use an
// in-memory map.
type ContextReader interface {
	// ReadBool returns the value under key and whether a boolean was
	// present.
	ReadBool(key string) (value bool, ok bool)
}

// ContextReaderFunc adapts a function to the ContextReader interface.
type ContextReaderFunc func(key string) (bool, bool)

// ReadBool calls the function.
func (f ContextReaderFunc) ReadBool(key string) (bool, bool) { return f(key) }

// SmartToggleResult is the group decision for a long click.
type SmartToggleResult struct {
	// StateToSet is the state to apply to the whole group: ON only when
	// strictly fewer than half the group's actuators are currently ON.
	StateToSet bool

	// Active is the number of actuators currently ON.
	Active int

	// Total is the number of actuators considered.
	Total int

	// Warning aggregates lookup problems, if any.
	Warning string
}

// noActuatorsWarning is returned when the group resolves to nothing.
const noActuatorsWarning = "Smart Toggle: No valid actuators found to calculate state."

// SmartToggle evaluates the threshold-majority decision for a group of
// actors. Unknown devices and unknown actuator IDs are skipped silently;
// external actors that cannot be read accumulate a warning. keyFor maps an
// external actor name to its context-store key.
func (r *Registry) SmartToggle(actors []config.Actor, otherActors []string, reader ContextReader, keyFor func(name string) string) SmartToggleResult {
	var active, total int

	for _, actor := range actors {
		d, ok := r.devices[actor.Name]
		if !ok {
			continue
		}
		if actor.AllActuators {
			total += len(d.ActuatorStates)
			for _, on := range d.ActuatorStates {
				if on {
					active++
				}
			}
			continue
		}
		for _, id := range actor.Actuators {
			idx, ok := d.indexes[id]
			if !ok || idx >= len(d.ActuatorStates) {
				continue
			}
			total++
			if d.ActuatorStates[idx] {
				active++
			}
		}
	}

	var warnings []string
	for _, name := range otherActors {
		on, ok := reader.ReadBool(keyFor(name))
		if !ok {
			warnings = append(warnings, fmt.Sprintf("State for external actor '%s' is missing or not a boolean.", name))
			continue
		}
		total++
		if on {
			active++
		}
	}

	warning := strings.Join(warnings, " ")
	if total == 0 {
		if warning == "" {
			warning = noActuatorsWarning
		}
		return SmartToggleResult{StateToSet: false, Warning: warning}
	}

	// Exactly half active resolves to OFF.
	return SmartToggleResult{
		StateToSet: float64(active) < float64(total)/2.0,
		Active:     active,
		Total:      total,
		Warning:    warning,
	}
}
