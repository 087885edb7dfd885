package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsh-protocol/lshd/pkg/clock"
	"github.com/lsh-protocol/lshd/pkg/config"
	"github.com/lsh-protocol/lshd/pkg/protocol"
)

// mapContext backs the ContextReader with a plain map.
type mapContext map[string]bool

func (m mapContext) ReadBool(key string) (bool, bool) {
	v, ok := m[key]
	return v, ok
}

// newTestOrchestrator builds an orchestrator on a fake clock with JSON
// validators and an in-memory context store.
func newTestOrchestrator(t *testing.T) (*Orchestrator, *clock.FakeClock, mapContext) {
	t.Helper()
	clk := clock.NewFakeClock(time.Unix(10000, 0))
	ctx := mapContext{}
	o := New(Options{
		Clock:         clk,
		Validators:    protocol.NewValidators(protocol.JSONCodec{}),
		ContextReader: ctx,
	})
	return o, clk, ctx
}

// clickConfig wires dev-sender's B1 long click to actor1 (all actuators).
func clickConfig() *config.SystemConfig {
	return &config.SystemConfig{Devices: []config.Device{
		{
			Name: "dev-sender",
			LongClickButtons: []config.ButtonAction{
				{ID: "B1", Actors: []config.Actor{{Name: "actor1", AllActuators: true}}},
			},
		},
		{Name: "actor1"},
	}}
}

// bringOnline walks a device through ready + conf + state so it is
// connected with a known actuator vector.
func bringOnline(t *testing.T, o *Orchestrator, name, conf, state string) {
	t.Helper()
	res := o.ProcessMessage("homie/"+name+"/$state", []byte("ready"))
	require.Empty(t, res.Errors)
	res = o.ProcessMessage("LSH/"+name+"/conf", []byte(conf))
	require.Empty(t, res.Errors)
	require.Empty(t, res.Warnings)
	res = o.ProcessMessage("LSH/"+name+"/state", []byte(state))
	require.Empty(t, res.Errors)
}

func payloadTag(t *testing.T, msg OutboundMessage) string {
	t.Helper()
	switch p := msg.Payload.(type) {
	case protocol.ClickAck:
		return p.Protocol
	case protocol.ClickFailover:
		return p.Protocol
	case protocol.GeneralFailover:
		return p.Protocol
	case protocol.ApplyAllActuatorsState:
		return p.Protocol
	case protocol.ApplySingleActuatorState:
		return p.Protocol
	case protocol.Ping:
		return p.Protocol
	case protocol.SendDeviceDetails:
		return p.Protocol
	case protocol.SendActuatorsState:
		return p.Protocol
	default:
		t.Fatalf("unexpected payload type %T", msg.Payload)
		return ""
	}
}

func hasLogContaining(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestMessageWithoutConfigIsRefused(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	res := o.ProcessMessage("LSH/dev-A/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":false}`))

	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "Configuration not loaded")
	require.Empty(t, res.LSHMessages)
	require.Empty(t, res.Alerts)
}

func TestUnknownTopicIsLogged(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())

	res := o.ProcessMessage("LSH/dev-A/bogus", []byte("x"))

	require.True(t, hasLogContaining(res.Logs, "No route"))
	require.Empty(t, res.LSHMessages)
}

func TestHappyPathLongClick(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())
	bringOnline(t, o, "actor1", `{"p":"d_dd","ai":["A1"],"bi":[]}`, `{"p":"d_as","as":[false]}`)

	// Phase 1: request is acknowledged.
	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":false}`))
	require.Len(t, res.LSHMessages, 1)
	require.Equal(t, "LSH/dev-sender/IN", res.LSHMessages[0].Topic)
	ack, ok := res.LSHMessages[0].Payload.(protocol.ClickAck)
	require.True(t, ok)
	require.Equal(t, protocol.TagNetworkClickAck, ack.Protocol)
	require.Equal(t, protocol.ClickLong, ack.ClickType)
	require.Equal(t, "B1", ack.ButtonID)

	// Phase 2: confirmation turns the group on (0/1 active).
	res = o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":true}`))
	require.Len(t, res.LSHMessages, 1)
	require.Equal(t, "LSH/actor1/IN", res.LSHMessages[0].Topic)
	cmd, ok := res.LSHMessages[0].Payload.(protocol.ApplyAllActuatorsState)
	require.True(t, ok)
	require.Equal(t, []bool{true}, cmd.States)
	require.True(t, hasLogContaining(res.Logs, "Click confirmed"))
}

func TestSingleActuatorOptimization(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	cfg := &config.SystemConfig{Devices: []config.Device{
		{
			Name: "dev-sender",
			LongClickButtons: []config.ButtonAction{
				{ID: "B1", Actors: []config.Actor{{Name: "actor1", Actuators: []string{"A2"}}}},
			},
		},
		{Name: "actor1"},
	}}
	o.UpdateSystemConfig(cfg)
	bringOnline(t, o, "actor1", `{"p":"d_dd","ai":["A1","A2"],"bi":[]}`, `{"p":"d_as","as":[false,false]}`)

	o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":false}`))
	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":true}`))

	require.Len(t, res.LSHMessages, 1)
	cmd, ok := res.LSHMessages[0].Payload.(protocol.ApplySingleActuatorState)
	require.True(t, ok, "single-actuator target must use c_asas, got %T", res.LSHMessages[0].Payload)
	require.Equal(t, "A2", cmd.ActuatorID)
	require.True(t, cmd.State)
}

func TestSuperLongClickAlwaysOff(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	cfg := &config.SystemConfig{Devices: []config.Device{
		{
			Name: "dev-sender",
			SuperLongClickButtons: []config.ButtonAction{
				{ID: "B1", Actors: []config.Actor{{Name: "actor1", AllActuators: true}}},
			},
		},
		{Name: "actor1"},
	}}
	o.UpdateSystemConfig(cfg)
	// Everything currently off: a smart toggle would turn the group ON.
	bringOnline(t, o, "actor1", `{"p":"d_dd","ai":["A1"],"bi":[]}`, `{"p":"d_as","as":[false]}`)

	o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"slc","c":false}`))
	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"slc","c":true}`))

	require.Len(t, res.LSHMessages, 1)
	cmd, ok := res.LSHMessages[0].Payload.(protocol.ApplyAllActuatorsState)
	require.True(t, ok)
	require.Equal(t, []bool{false}, cmd.States, "super-long click always switches off")
}

func TestClickOfflineTargetFailsOver(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())
	// actor1 known but not connected.
	o.ProcessMessage("LSH/actor1/conf", []byte(`{"p":"d_dd","ai":["A1"],"bi":[]}`))

	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":false}`))

	require.Len(t, res.LSHMessages, 1)
	require.Equal(t, "LSH/dev-sender/IN", res.LSHMessages[0].Topic)
	fo, ok := res.LSHMessages[0].Payload.(protocol.ClickFailover)
	require.True(t, ok)
	require.Equal(t, protocol.TagClickFailover, fo.Protocol)
	require.Len(t, res.Alerts, 1)
	require.Contains(t, res.Alerts[0], "Target actor(s) are offline: actor1")
}

func TestClickUnknownButtonFailsOver(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())

	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B9","ct":"lc","c":false}`))

	require.Len(t, res.LSHMessages, 1)
	_, ok := res.LSHMessages[0].Payload.(protocol.ClickFailover)
	require.True(t, ok)
	require.Contains(t, res.Alerts[0], "No action configured")
}

func TestClickNoTargetsFailsOver(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(&config.SystemConfig{Devices: []config.Device{
		{
			Name:             "dev-sender",
			LongClickButtons: []config.ButtonAction{{ID: "B1"}},
		},
	}})

	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":false}`))

	require.Len(t, res.Alerts, 1)
	require.Contains(t, res.Alerts[0], "no targets")
}

func TestConfirmationWithoutRequestWarns(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())

	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":true}`))

	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "expired or unknown click: dev-sender.B1.lc")
	require.Empty(t, res.LSHMessages)
}

func TestConfirmationAfterTimeoutWarns(t *testing.T) {
	o, clk, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())
	bringOnline(t, o, "actor1", `{"p":"d_dd","ai":["A1"],"bi":[]}`, `{"p":"d_as","as":[false]}`)

	o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":false}`))
	clk.Advance(DefaultTiming().ClickTimeout + time.Second)

	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":true}`))
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "expired or unknown click")
}

func TestClickFanOutToOtherActors(t *testing.T) {
	o, _, ctx := newTestOrchestrator(t)
	o.UpdateSystemConfig(&config.SystemConfig{Devices: []config.Device{
		{
			Name: "dev-sender",
			LongClickButtons: []config.ButtonAction{
				{ID: "B1", OtherActors: []string{"ext-lamp"}},
			},
		},
	}})
	ctx["zigbee2mqtt.ext-lamp.state"] = true

	o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":false}`))
	res := o.ProcessMessage("LSH/dev-sender/misc", []byte(`{"p":"c_nc","bi":"B1","ct":"lc","c":true}`))

	require.NotNil(t, res.OtherActors)
	require.Equal(t, []string{"ext-lamp"}, res.OtherActors.Names)
	// 1/1 active: switch off.
	require.False(t, res.OtherActors.StateToSet)
	require.Empty(t, res.LSHMessages)
}

func TestHomieOfflineAlertsAndOnlineRefreshes(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())

	res := o.ProcessMessage("homie/actor1/$state", []byte("ready"))
	require.True(t, res.StateChanged)
	require.Len(t, res.Alerts, 1)
	require.Contains(t, res.Alerts[0], "RECOVERED")
	require.Len(t, res.LSHMessages, 2)
	require.Equal(t, protocol.TagSendDeviceDetails, payloadTag(t, res.LSHMessages[0]))
	require.Equal(t, protocol.TagSendActuatorsState, payloadTag(t, res.LSHMessages[1]))

	// Repeat ready: idempotent.
	res = o.ProcessMessage("homie/actor1/$state", []byte("ready"))
	require.False(t, res.StateChanged)
	require.Empty(t, res.Alerts)

	res = o.ProcessMessage("homie/actor1/$state", []byte("lost"))
	require.True(t, res.StateChanged)
	require.Len(t, res.Alerts, 1)
	require.Contains(t, res.Alerts[0], "Device reported as 'lost' by Homie.")
}

func TestConfReplayReportsNoChange(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())

	res := o.ProcessMessage("LSH/actor1/conf", []byte(`{"p":"d_dd","ai":["A1"],"bi":["B1"]}`))
	require.True(t, res.StateChanged)

	res = o.ProcessMessage("LSH/actor1/conf", []byte(`{"p":"d_dd","ai":["A1"],"bi":["B1"]}`))
	require.False(t, res.StateChanged)
}

func TestStateWithoutConfRequestsDetails(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())

	res := o.ProcessMessage("LSH/actor1/state", []byte(`{"p":"d_as","as":[true]}`))

	require.True(t, hasLogContaining(res.Logs, "partial registry entry"))
	require.Len(t, res.Warnings, 1)
	require.Len(t, res.LSHMessages, 1)
	require.Equal(t, protocol.TagSendDeviceDetails, payloadTag(t, res.LSHMessages[0]))
}

func TestStateLengthMismatchIsError(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())
	o.ProcessMessage("LSH/actor1/conf", []byte(`{"p":"d_dd","ai":["A1","A2"],"bi":[]}`))

	res := o.ProcessMessage("LSH/actor1/state", []byte(`{"p":"d_as","as":[true]}`))

	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "mismatch")
	require.False(t, res.StateChanged)
}

func TestInvalidPayloadWarns(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())

	res := o.ProcessMessage("LSH/actor1/conf", []byte(`{"p":"d_dd"}`))

	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "Invalid conf payload")
}

func TestBootRecoversDevice(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())
	o.ProcessMessage("homie/actor1/$state", []byte("lost"))

	res := o.ProcessMessage("LSH/actor1/misc", []byte(`{"p":"d_b"}`))
	require.True(t, res.StateChanged)
	require.True(t, hasLogContaining(res.Logs, "booted"))

	// Boot on a healthy device changes nothing.
	res = o.ProcessMessage("LSH/actor1/misc", []byte(`{"p":"d_b"}`))
	require.False(t, res.StateChanged)
}

func TestPingResponseRecovers(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())
	o.ProcessMessage("homie/actor1/$state", []byte("lost"))

	res := o.ProcessMessage("LSH/actor1/misc", []byte(`{"p":"d_p"}`))

	require.True(t, res.StateChanged)
	require.Len(t, res.Alerts, 1)
	require.Contains(t, res.Alerts[0], "RECOVERED")
}

func TestUpdateSystemConfigPrunes(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.UpdateSystemConfig(clickConfig())
	o.ProcessMessage("homie/actor1/$state", []byte("ready"))
	o.ProcessMessage("homie/dev-sender/$state", []byte("ready"))

	logLine := o.UpdateSystemConfig(&config.SystemConfig{Devices: []config.Device{{Name: "actor1"}}})

	require.Contains(t, logLine, "1 registry entries pruned")
	snap := o.DeviceRegistrySnapshot()
	require.Contains(t, snap, "actor1")
	require.NotContains(t, snap, "dev-sender")
	// Surviving entries are untouched.
	require.True(t, snap["actor1"].Connected)
}
