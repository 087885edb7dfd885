package protocol

// Protocol tags carried in the "p" field of every LSH payload.
const (
	// TagDeviceDetails is sent by a device announcing its configuration
	// (actuator and button identifiers) on the conf topic.
	TagDeviceDetails = "d_dd"

	// TagActuatorStates is sent by a device reporting its full actuator
	// state vector on the state topic.
	TagActuatorStates = "d_as"

	// TagNetworkClick is a button event forwarded over the bus, sent twice:
	// once as a request (c=false) and once as a confirmation (c=true).
	TagNetworkClick = "c_nc"

	// TagDeviceBoot is sent by a device after (re)booting.
	TagDeviceBoot = "d_b"

	// TagPing is both the inbound ping response and the outbound ping
	// request; the payload is the bare tag in either direction.
	TagPing = "d_p"

	// TagNetworkClickAck acknowledges a network-click request.
	TagNetworkClickAck = "d_nca"

	// TagClickFailover tells the source device its click request failed and
	// it should fall back to local actuation.
	TagClickFailover = "c_f"

	// TagGeneralFailover signals an internal failure not tied to a single
	// click.
	TagGeneralFailover = "c_gf"

	// TagApplyAllActuatorsState carries a full actuator state vector to
	// apply.
	TagApplyAllActuatorsState = "c_aas"

	// TagApplySingleActuatorState sets a single actuator by identifier.
	TagApplySingleActuatorState = "c_asas"

	// TagSendDeviceDetails asks a device to re-announce its configuration.
	TagSendDeviceDetails = "d_sdd"

	// TagSendActuatorsState asks a device to re-announce its actuator
	// states.
	TagSendActuatorsState = "d_sas"
)

// ClickType distinguishes the two button events that travel over the bus.
type ClickType string

const (
	// ClickLong is a long press.
	ClickLong ClickType = "lc"

	// ClickSuperLong is a super-long press.
	ClickSuperLong ClickType = "slc"
)

// Valid reports whether the click type is one of the known values.
func (c ClickType) Valid() bool {
	return c == ClickLong || c == ClickSuperLong
}

// Homie device lifecycle states published on the $state topic. Only
// HomieReady counts as connected; every other value is a disconnect.
const (
	HomieReady = "ready"
	HomieInit  = "init"
	HomieLost  = "lost"
	HomieAlert = "alert"
)
