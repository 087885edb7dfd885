package registry

// DeviceState is the authoritative record of one device: connectivity,
// health, and actuator states. Timestamps are milliseconds since epoch;
// zero means "never".
type DeviceState struct {
	// Name is the device's stable identifier.
	Name string `json:"name"`

	// Connected is the last Homie-level connectivity.
	Connected bool `json:"connected"`

	// IsHealthy is the last watchdog verdict.
	IsHealthy bool `json:"isHealthy"`

	// IsStale means a ping is outstanding and overdue but the device has
	// not yet been declared unhealthy.
	IsStale bool `json:"isStale"`

	// AlertSent means an unhealthy alert was already emitted; it suppresses
	// repeats until the device recovers.
	AlertSent bool `json:"alertSent"`

	// LastSeenTime is when the device last produced any message.
	LastSeenTime int64 `json:"lastSeenTime"`

	// LastBootTime is when the device last reported a boot.
	LastBootTime int64 `json:"lastBootTime"`

	// LastDetailsTime is when the device last announced its configuration.
	LastDetailsTime int64 `json:"lastDetailsTime"`

	// ActuatorIDs lists actuator identifiers; position is the canonical
	// index into ActuatorStates.
	ActuatorIDs []string `json:"actuatorsIDs"`

	// ButtonIDs lists button identifiers.
	ButtonIDs []string `json:"buttonsIDs"`

	// ActuatorStates holds one boolean per actuator. Once LastDetailsTime
	// is non-zero its length equals len(ActuatorIDs).
	ActuatorStates []bool `json:"actuatorStates"`

	// indexes maps actuator ID to its position in ActuatorIDs. Derived;
	// rebuilt on every details update.
	indexes map[string]int
}

// newDeviceState materializes the default entry for a device entering the
// registry via create-on-write.
func newDeviceState(name string) *DeviceState {
	return &DeviceState{
		Name:           name,
		ActuatorIDs:    []string{},
		ButtonIDs:      []string{},
		ActuatorStates: []bool{},
		indexes:        map[string]int{},
	}
}

// ActuatorIndex returns the canonical index of an actuator ID.
func (d *DeviceState) ActuatorIndex(id string) (int, bool) {
	i, ok := d.indexes[id]
	return i, ok
}

// NeverSeen reports whether the device has never produced a message.
func (d *DeviceState) NeverSeen() bool {
	return d.LastSeenTime == 0
}

// rebuildIndexes recomputes the actuator index cache from ActuatorIDs.
func (d *DeviceState) rebuildIndexes() {
	d.indexes = make(map[string]int, len(d.ActuatorIDs))
	for i, id := range d.ActuatorIDs {
		d.indexes[id] = i
	}
}

// Clone returns a deep copy, safe for callers to mutate.
func (d *DeviceState) Clone() *DeviceState {
	c := *d
	c.ActuatorIDs = append([]string(nil), d.ActuatorIDs...)
	c.ButtonIDs = append([]string(nil), d.ButtonIDs...)
	c.ActuatorStates = append([]bool(nil), d.ActuatorStates...)
	c.indexes = make(map[string]int, len(d.indexes))
	for k, v := range d.indexes {
		c.indexes[k] = v
	}
	return &c
}
