package protocol

// DeviceDetails is the d_dd payload a device publishes on its conf topic.
// Extra wire fields are tolerated and ignored.
type DeviceDetails struct {
	Protocol    string   `json:"p" cbor:"p"`
	ActuatorIDs []string `json:"ai" cbor:"ai"`
	ButtonIDs   []string `json:"bi" cbor:"bi"`
	DeviceName  string   `json:"dn,omitempty" cbor:"dn,omitempty"`
}

// ActuatorStates is the d_as payload a device publishes on its state topic.
type ActuatorStates struct {
	Protocol string `json:"p" cbor:"p"`
	States   []bool `json:"as" cbor:"as"`
}

// MiscMessage is one of the payloads multiplexed on the misc topic:
// NetworkClick, DeviceBoot or DevicePing.
type MiscMessage interface {
	// Tag returns the protocol tag discriminating the payload.
	Tag() string
}

// NetworkClick is the c_nc payload. A device sends it with Confirmed=false
// to request an action and again with Confirmed=true once the user released
// the button, confirming the request.
type NetworkClick struct {
	Protocol  string    `json:"p" cbor:"p"`
	ButtonID  string    `json:"bi" cbor:"bi"`
	ClickType ClickType `json:"ct" cbor:"ct"`
	Confirmed bool      `json:"c" cbor:"c"`
}

// Tag returns TagNetworkClick.
func (NetworkClick) Tag() string { return TagNetworkClick }

// DeviceBoot is the d_b payload announcing a (re)boot.
type DeviceBoot struct {
	Protocol string `json:"p" cbor:"p"`
}

// Tag returns TagDeviceBoot.
func (DeviceBoot) Tag() string { return TagDeviceBoot }

// DevicePing is the d_p payload answering a ping request.
type DevicePing struct {
	Protocol string `json:"p" cbor:"p"`
}

// Tag returns TagPing.
func (DevicePing) Tag() string { return TagPing }

// Outbound command payloads. Constructors fill in the protocol tag so
// callers cannot produce a mistagged command.

// ClickAck acknowledges a network-click request back to the source device.
type ClickAck struct {
	Protocol  string    `json:"p" cbor:"p"`
	ClickType ClickType `json:"ct" cbor:"ct"`
	ButtonID  string    `json:"bi" cbor:"bi"`
}

// NewClickAck builds a d_nca payload for the given click.
func NewClickAck(ct ClickType, buttonID string) ClickAck {
	return ClickAck{Protocol: TagNetworkClickAck, ClickType: ct, ButtonID: buttonID}
}

// ClickFailover tells the source device a specific click failed.
type ClickFailover struct {
	Protocol  string    `json:"p" cbor:"p"`
	ClickType ClickType `json:"ct" cbor:"ct"`
	ButtonID  string    `json:"bi" cbor:"bi"`
}

// NewClickFailover builds a c_f payload for the given click.
func NewClickFailover(ct ClickType, buttonID string) ClickFailover {
	return ClickFailover{Protocol: TagClickFailover, ClickType: ct, ButtonID: buttonID}
}

// GeneralFailover signals an internal failure not tied to a single click.
type GeneralFailover struct {
	Protocol string `json:"p" cbor:"p"`
}

// NewGeneralFailover builds a c_gf payload.
func NewGeneralFailover() GeneralFailover {
	return GeneralFailover{Protocol: TagGeneralFailover}
}

// ApplyAllActuatorsState carries a full state vector for a device to apply.
type ApplyAllActuatorsState struct {
	Protocol string `json:"p" cbor:"p"`
	States   []bool `json:"as" cbor:"as"`
}

// NewApplyAllActuatorsState builds a c_aas payload.
func NewApplyAllActuatorsState(states []bool) ApplyAllActuatorsState {
	return ApplyAllActuatorsState{Protocol: TagApplyAllActuatorsState, States: states}
}

// ApplySingleActuatorState sets one actuator by identifier.
type ApplySingleActuatorState struct {
	Protocol   string `json:"p" cbor:"p"`
	ActuatorID string `json:"ai" cbor:"ai"`
	State      bool   `json:"as" cbor:"as"`
}

// NewApplySingleActuatorState builds a c_asas payload.
func NewApplySingleActuatorState(actuatorID string, state bool) ApplySingleActuatorState {
	return ApplySingleActuatorState{Protocol: TagApplySingleActuatorState, ActuatorID: actuatorID, State: state}
}

// Ping is the outbound ping request.
type Ping struct {
	Protocol string `json:"p" cbor:"p"`
}

// NewPing builds a d_p request payload.
func NewPing() Ping { return Ping{Protocol: TagPing} }

// SendDeviceDetails asks a device to re-announce its configuration.
type SendDeviceDetails struct {
	Protocol string `json:"p" cbor:"p"`
}

// NewSendDeviceDetails builds a d_sdd payload.
func NewSendDeviceDetails() SendDeviceDetails {
	return SendDeviceDetails{Protocol: TagSendDeviceDetails}
}

// SendActuatorsState asks a device to re-announce its actuator states.
type SendActuatorsState struct {
	Protocol string `json:"p" cbor:"p"`
}

// NewSendActuatorsState builds a d_sas payload.
func NewSendActuatorsState() SendActuatorsState {
	return SendActuatorsState{Protocol: TagSendActuatorsState}
}
