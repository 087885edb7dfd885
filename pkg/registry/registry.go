// Package registry is the source of truth for device configuration,
// connectivity, health, and actuator states.
//
// Devices enter the registry via create-on-write: any operation referencing
// an unknown name materializes a default entry. Entries leave only through
// explicit pruning on configuration reload. Every mutating operation
// returns a change summary so the orchestrator can gate logging and alert
// emission on actual observable change.
//
// The registry is part of the single-threaded orchestrator core; callers
// serialise access.
package registry

import (
	"errors"
	"fmt"

	"github.com/lsh-protocol/lshd/pkg/clock"
	"github.com/lsh-protocol/lshd/pkg/watchdog"
)

// ErrStateLengthMismatch is returned when a reported state vector does not
// match the known actuator count.
var ErrStateLengthMismatch = errors.New("actuator state length mismatch")

// Registry maps device names to their authoritative state.
type Registry struct {
	clock   clock.Clock
	devices map[string]*DeviceState
}

// New creates an empty registry.
func New(clk clock.Clock) *Registry {
	return &Registry{
		clock:   clk,
		devices: make(map[string]*DeviceState),
	}
}

// nowMillis returns the injected clock's time in ms since epoch.
func (r *Registry) nowMillis() int64 {
	return r.clock.Now().UnixMilli()
}

// getOrCreate returns the entry for name, materializing a default one if
// needed. The second return is true when the entry already existed.
func (r *Registry) getOrCreate(name string) (*DeviceState, bool) {
	if d, ok := r.devices[name]; ok {
		return d, true
	}
	d := newDeviceState(name)
	r.devices[name] = d
	return d, false
}

// Get returns a deep copy of a device's state.
func (r *Registry) Get(name string) (*DeviceState, bool) {
	d, ok := r.devices[name]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Count returns the number of registry entries.
func (r *Registry) Count() int {
	return len(r.devices)
}

// Snapshot returns a deep copy of the whole registry, safe for callers to
// mutate or serialize.
func (r *Registry) Snapshot() map[string]*DeviceState {
	out := make(map[string]*DeviceState, len(r.devices))
	for name, d := range r.devices {
		out[name] = d.Clone()
	}
	return out
}

// DetailsResult summarizes a RegisterDeviceDetails call.
type DetailsResult struct {
	// Changed is true when an ID sequence differs from the prior value or
	// the state vector was reset to a new length.
	Changed bool
}

// RegisterDeviceDetails applies a device's announced configuration: its
// actuator and button identifiers. A length change resets the state vector
// to all-false.
func (r *Registry) RegisterDeviceDetails(name string, actuatorIDs, buttonIDs []string) DetailsResult {
	d, _ := r.getOrCreate(name)

	changed := !stringsEqual(d.ActuatorIDs, actuatorIDs) || !stringsEqual(d.ButtonIDs, buttonIDs)

	d.ActuatorIDs = append([]string{}, actuatorIDs...)
	d.ButtonIDs = append([]string{}, buttonIDs...)
	d.rebuildIndexes()

	if len(d.ActuatorStates) != len(d.ActuatorIDs) {
		d.ActuatorStates = make([]bool, len(d.ActuatorIDs))
		changed = true
	}

	now := r.nowMillis()
	d.LastSeenTime = now
	d.LastDetailsTime = now

	return DetailsResult{Changed: changed}
}

// StatesResult summarizes a RegisterActuatorStates call.
type StatesResult struct {
	// IsNew is true when the device had no registry entry.
	IsNew bool

	// Changed is true when the vector differs from the prior value.
	Changed bool

	// ConfigMissing is true when no device details are known yet.
	ConfigMissing bool
}

// RegisterActuatorStates applies a reported actuator state vector. When the
// device configuration is known and the vector length does not match,
// ErrStateLengthMismatch is returned and nothing is mutated.
func (r *Registry) RegisterActuatorStates(name string, states []bool) (StatesResult, error) {
	existing, existed := r.devices[name]
	if existed && existing.LastDetailsTime > 0 && len(states) != len(existing.ActuatorIDs) {
		return StatesResult{}, fmt.Errorf("%w: device %q reported %d states, expected %d",
			ErrStateLengthMismatch, name, len(states), len(existing.ActuatorIDs))
	}

	d, _ := r.getOrCreate(name)
	res := StatesResult{
		IsNew:         !existed,
		ConfigMissing: d.LastDetailsTime == 0,
	}

	res.Changed = !boolsEqual(d.ActuatorStates, states)
	d.ActuatorStates = append([]bool{}, states...)
	d.LastSeenTime = r.nowMillis()

	return res, nil
}

// ConnectionResult summarizes an UpdateConnectionState call.
type ConnectionResult struct {
	// StateChanged is true when connectivity flipped.
	StateChanged bool

	// Connected is the resulting connectivity.
	Connected bool

	// CameOnline is true when the device transitioned to connected.
	CameOnline bool

	// WentOffline is true when the device transitioned away from connected.
	WentOffline bool
}

// UpdateConnectionState applies a Homie $state value. Only "ready" counts
// as connected; a transition to ready also resets health, staleness, and
// the alert latch.
func (r *Registry) UpdateConnectionState(name, homieState string) ConnectionResult {
	d, _ := r.getOrCreate(name)
	d.LastSeenTime = r.nowMillis()

	isReady := homieState == "ready"
	if isReady == d.Connected {
		return ConnectionResult{Connected: d.Connected}
	}

	d.Connected = isReady
	if isReady {
		d.IsHealthy = true
		d.IsStale = false
		d.AlertSent = false
	} else {
		d.IsHealthy = false
		d.IsStale = false
	}

	return ConnectionResult{
		StateChanged: true,
		Connected:    isReady,
		CameOnline:   isReady,
		WentOffline:  !isReady,
	}
}

// BootResult summarizes a RecordBoot call.
type BootResult struct {
	// StateChanged is true when connectivity, health, or staleness changed.
	StateChanged bool
}

// RecordBoot applies a device boot report: the device is connected, healthy
// and not stale, and the alert latch is released.
func (r *Registry) RecordBoot(name string) BootResult {
	d, _ := r.getOrCreate(name)

	changed := !d.Connected || !d.IsHealthy || d.IsStale
	d.Connected = true
	d.IsHealthy = true
	d.IsStale = false
	d.AlertSent = false

	now := r.nowMillis()
	d.LastBootTime = now
	d.LastSeenTime = now

	return BootResult{StateChanged: changed}
}

// PingResult summarizes a RecordPingResponse call.
type PingResult struct {
	// StateChanged is true when the response recovered the device.
	StateChanged bool

	// CameOnline is true when the response recovered the device.
	CameOnline bool
}

// RecordPingResponse applies a ping response. A response from an unhealthy
// or stale device recovers it and releases the alert latch.
func (r *Registry) RecordPingResponse(name string) PingResult {
	d, _ := r.getOrCreate(name)
	d.LastSeenTime = r.nowMillis()

	if d.IsHealthy && !d.IsStale {
		return PingResult{}
	}

	d.IsHealthy = true
	d.IsStale = false
	d.AlertSent = false

	return PingResult{StateChanged: true, CameOnline: true}
}

// HealthResult summarizes an UpdateHealthFromResult call.
type HealthResult struct {
	// StateChanged is true when health or staleness flags changed.
	StateChanged bool
}

// UpdateHealthFromResult applies a watchdog verdict. Unknown devices are
// left alone; a needs-ping verdict is a no-op.
func (r *Registry) UpdateHealthFromResult(name string, wres watchdog.Result) HealthResult {
	d, ok := r.devices[name]
	if !ok {
		return HealthResult{}
	}

	switch wres.Verdict {
	case watchdog.VerdictOK:
		if !d.IsHealthy || d.IsStale {
			d.IsHealthy = true
			d.IsStale = false
			return HealthResult{StateChanged: true}
		}
	case watchdog.VerdictStale:
		if !d.IsStale {
			d.IsStale = true
			return HealthResult{StateChanged: true}
		}
	case watchdog.VerdictUnhealthy:
		if d.IsHealthy || d.IsStale {
			d.IsHealthy = false
			d.IsStale = false
			return HealthResult{StateChanged: true}
		}
	case watchdog.VerdictNeedsPing:
		// Ping emission is the orchestrator's business; nothing to record.
	}

	return HealthResult{}
}

// AlertResult summarizes a RecordAlertSent call.
type AlertResult struct {
	// StateChanged is true when the alert latch was newly set.
	StateChanged bool
}

// RecordAlertSent latches the unhealthy alert for a device so it is not
// repeated until recovery.
func (r *Registry) RecordAlertSent(name string) AlertResult {
	d, _ := r.getOrCreate(name)

	if d.AlertSent {
		return AlertResult{}
	}

	d.AlertSent = true
	d.IsHealthy = false

	return AlertResult{StateChanged: true}
}

// Prune removes a device from the registry.
func (r *Registry) Prune(name string) {
	delete(r.devices, name)
}

// PruneNotIn removes every device whose name is not in keep. Returns the
// number of entries removed.
func (r *Registry) PruneNotIn(keep []string) int {
	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		keepSet[name] = true
	}

	pruned := 0
	for name := range r.devices {
		if !keepSet[name] {
			delete(r.devices, name)
			pruned++
		}
	}
	return pruned
}

// stringsEqual reports strict positional equality.
func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// boolsEqual reports strict positional equality.
func boolsEqual(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
