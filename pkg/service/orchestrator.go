// Package service implements the orchestrator core: a single-threaded,
// I/O-free state machine that consumes parsed bus messages and timer ticks
// and produces Result batches for the adapter to execute.
//
// The orchestrator owns the device registry, the click transaction manager,
// and the watchdog. All entry points must be serialised by the adapter; the
// core holds no locks of its own and performs no I/O.
package service

import (
	"strings"

	"github.com/lsh-protocol/lshd/pkg/click"
	"github.com/lsh-protocol/lshd/pkg/clock"
	"github.com/lsh-protocol/lshd/pkg/config"
	"github.com/lsh-protocol/lshd/pkg/protocol"
	"github.com/lsh-protocol/lshd/pkg/registry"
	"github.com/lsh-protocol/lshd/pkg/watchdog"
)

// Options configures an Orchestrator.
type Options struct {
	// Clock is the time source. Defaults to the system clock.
	Clock clock.Clock

	// Topics is the bus topic layout. Defaults to DefaultTopics.
	Topics protocol.Topics

	// Validators validate inbound payloads. Required.
	Validators protocol.Validators

	// ContextReader looks up external actuator states for the smart
	// toggle. Required.
	ContextReader registry.ContextReader

	// Timing holds the timing knobs. Zero fields take defaults.
	Timing Timing
}

// Orchestrator routes inbound messages, executes the click two-phase
// commit, and drives liveness sweeps.
type Orchestrator struct {
	clock      clock.Clock
	topics     protocol.Topics
	router     *protocol.Router
	validators protocol.Validators
	ctx        registry.ContextReader

	registry *registry.Registry
	watchdog *watchdog.Watchdog
	clicks   *click.Manager

	cfg *config.SystemConfig
}

// New creates an orchestrator with no configuration loaded. Every inbound
// message is refused with a warning until UpdateSystemConfig is called.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.SystemClock{}
	}
	if opts.Topics == (protocol.Topics{}) {
		opts.Topics = protocol.DefaultTopics()
	}
	def := DefaultTiming()
	if opts.Timing.ClickTimeout == 0 {
		opts.Timing.ClickTimeout = def.ClickTimeout
	}
	if opts.Timing.InterrogateThreshold == 0 {
		opts.Timing.InterrogateThreshold = def.InterrogateThreshold
	}
	if opts.Timing.PingTimeout == 0 {
		opts.Timing.PingTimeout = def.PingTimeout
	}

	return &Orchestrator{
		clock:      opts.Clock,
		topics:     opts.Topics,
		router:     protocol.NewRouter(opts.Topics),
		validators: opts.Validators,
		ctx:        opts.ContextReader,
		registry:   registry.New(opts.Clock),
		watchdog:   watchdog.New(opts.Clock, opts.Timing.InterrogateThreshold, opts.Timing.PingTimeout),
		clicks:     click.NewManager(opts.Clock, opts.Timing.ClickTimeout),
	}
}

// UpdateSystemConfig replaces the system configuration, pruning registry
// entries for devices no longer present. Returns a log line describing the
// load.
func (o *Orchestrator) UpdateSystemConfig(cfg *config.SystemConfig) string {
	o.cfg = cfg
	pruned := o.registry.PruneNotIn(cfg.DeviceNames())
	return sprintf("System configuration loaded: %d devices, %d registry entries pruned.",
		len(cfg.Devices), pruned)
}

// ClearSystemConfig unloads the configuration. Inbound messages are refused
// until a new one is loaded.
func (o *Orchestrator) ClearSystemConfig() {
	o.cfg = nil
}

// ConfiguredDeviceNames returns the configured device names, or nil when no
// configuration is loaded.
func (o *Orchestrator) ConfiguredDeviceNames() []string {
	if o.cfg == nil {
		return nil
	}
	return o.cfg.DeviceNames()
}

// DeviceRegistrySnapshot returns a deep copy of the device registry, safe
// for the caller to mutate or serialize.
func (o *Orchestrator) DeviceRegistrySnapshot() map[string]*registry.DeviceState {
	return o.registry.Snapshot()
}

// ProcessMessage routes one inbound bus message and returns the resulting
// action batch.
func (o *Orchestrator) ProcessMessage(topic string, payload []byte) Result {
	var res Result

	kind, device := o.router.Match(topic)
	if kind == protocol.TopicUnknown {
		res.logf("No route for topic '%s'.", topic)
		return res
	}

	if o.cfg == nil {
		res.warnf(reasonConfigNotLoaded)
		return res
	}

	o.watchdog.OnDeviceActivity(device)

	switch kind {
	case protocol.TopicHomieState:
		o.handleHomieState(&res, device, payload)
	case protocol.TopicDeviceConf:
		o.handleDeviceConf(&res, device, payload)
	case protocol.TopicDeviceState:
		o.handleDeviceState(&res, device, payload)
	case protocol.TopicDeviceMisc:
		o.handleDeviceMisc(&res, device, payload)
	}

	return res
}

// handleHomieState applies a Homie $state payload: a plain string such as
// "ready" or "lost".
func (o *Orchestrator) handleHomieState(res *Result, device string, payload []byte) {
	state := strings.TrimSpace(string(payload))

	cr := o.registry.UpdateConnectionState(device, state)
	if !cr.StateChanged {
		return
	}

	res.StateChanged = true
	res.logf("Device '%s' connection changed to '%s'.", device, state)

	if cr.WentOffline {
		reason := sprintf("Device reported as '%s' by Homie.", state)
		res.Alerts = append(res.Alerts, formatUnhealthyAlert(device, reason, ""))
		return
	}

	// Back online: announce recovery and refresh our view of the device.
	res.Alerts = append(res.Alerts, formatRecoveryAlert(device))
	inbox := o.topics.DeviceInbox(device)
	res.LSHMessages = append(res.LSHMessages,
		OutboundMessage{Topic: inbox, Payload: protocol.NewSendDeviceDetails()},
		OutboundMessage{Topic: inbox, Payload: protocol.NewSendActuatorsState()},
	)
}

// handleDeviceConf applies a device details announcement.
func (o *Orchestrator) handleDeviceConf(res *Result, device string, payload []byte) {
	details, errs := o.validators.DeviceDetails(payload)
	if details == nil {
		res.warnf("Invalid conf payload from '%s': %s", device, joinErrors(errs))
		return
	}

	dr := o.registry.RegisterDeviceDetails(device, details.ActuatorIDs, details.ButtonIDs)
	if dr.Changed {
		res.StateChanged = true
		res.logf("Device details updated for '%s': %d actuators, %d buttons.",
			device, len(details.ActuatorIDs), len(details.ButtonIDs))
	}
}

// handleDeviceState applies a reported actuator state vector.
func (o *Orchestrator) handleDeviceState(res *Result, device string, payload []byte) {
	states, errs := o.validators.ActuatorStates(payload)
	if states == nil {
		res.warnf("Invalid state payload from '%s': %s", device, joinErrors(errs))
		return
	}

	sr, err := o.registry.RegisterActuatorStates(device, states.States)
	if err != nil {
		res.errorf("%s", err.Error())
		return
	}

	if sr.IsNew {
		res.logf("Created partial registry entry for '%s' from state report.", device)
	}
	if sr.ConfigMissing {
		res.warnf("No device details known for '%s', requesting them.", device)
		res.LSHMessages = append(res.LSHMessages, OutboundMessage{
			Topic:   o.topics.DeviceInbox(device),
			Payload: protocol.NewSendDeviceDetails(),
		})
	}
	if sr.Changed {
		res.StateChanged = true
		res.logf("Actuator states for '%s' changed to %v.", device, states.States)
	}
}

// handleDeviceMisc dispatches the multiplexed misc payload on its protocol
// tag.
func (o *Orchestrator) handleDeviceMisc(res *Result, device string, payload []byte) {
	msg, errs := o.validators.Misc(payload)
	if msg == nil {
		res.warnf("Invalid misc payload from '%s': %s", device, joinErrors(errs))
		return
	}

	switch m := msg.(type) {
	case protocol.DeviceBoot:
		br := o.registry.RecordBoot(device)
		res.logf("Device '%s' booted.", device)
		if br.StateChanged {
			res.StateChanged = true
		}

	case protocol.DevicePing:
		pr := o.registry.RecordPingResponse(device)
		if pr.CameOnline {
			res.StateChanged = true
			res.Alerts = append(res.Alerts, formatRecoveryAlert(device))
		}

	case protocol.NetworkClick:
		if m.Confirmed {
			o.handleClickConfirmation(res, device, m)
		} else {
			o.handleClickRequest(res, device, m, payload)
		}
	}
}

// joinErrors aggregates validator error strings for a warning line.
func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "unknown validation error"
	}
	return strings.Join(errs, "; ")
}
