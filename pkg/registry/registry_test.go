package registry

import (
	"testing"
	"time"

	"github.com/lsh-protocol/lshd/pkg/clock"
	"github.com/lsh-protocol/lshd/pkg/watchdog"
)

func newTestRegistry() (*Registry, *clock.FakeClock) {
	clk := clock.NewFakeClock(time.Unix(1000, 0))
	return New(clk), clk
}

func TestRegisterDeviceDetails(t *testing.T) {
	r, clk := newTestRegistry()

	res := r.RegisterDeviceDetails("dev-A", []string{"A1", "A2"}, []string{"B1"})
	if !res.Changed {
		t.Fatal("Changed = false for first details")
	}

	d, ok := r.Get("dev-A")
	if !ok {
		t.Fatal("device missing after details")
	}
	if len(d.ActuatorIDs) != 2 || d.ActuatorIDs[0] != "A1" || d.ActuatorIDs[1] != "A2" {
		t.Errorf("ActuatorIDs = %v", d.ActuatorIDs)
	}
	if len(d.ActuatorStates) != 2 {
		t.Errorf("len(ActuatorStates) = %d, want 2", len(d.ActuatorStates))
	}
	for i, id := range d.ActuatorIDs {
		if idx, ok := d.ActuatorIndex(id); !ok || idx != i {
			t.Errorf("ActuatorIndex(%q) = %d,%t, want %d,true", id, idx, ok, i)
		}
	}
	if d.LastDetailsTime != clk.Now().UnixMilli() {
		t.Errorf("LastDetailsTime = %d, want %d", d.LastDetailsTime, clk.Now().UnixMilli())
	}
	if d.LastSeenTime != clk.Now().UnixMilli() {
		t.Errorf("LastSeenTime = %d, want %d", d.LastSeenTime, clk.Now().UnixMilli())
	}
}

func TestRegisterDeviceDetailsIdempotent(t *testing.T) {
	r, _ := newTestRegistry()

	r.RegisterDeviceDetails("dev-A", []string{"A1"}, []string{"B1"})
	res := r.RegisterDeviceDetails("dev-A", []string{"A1"}, []string{"B1"})

	if res.Changed {
		t.Error("Changed = true on identical replay")
	}
}

func TestRegisterDeviceDetailsLengthChangeResetsStates(t *testing.T) {
	r, _ := newTestRegistry()

	r.RegisterDeviceDetails("dev-A", []string{"A1"}, []string{"B1"})
	if _, err := r.RegisterActuatorStates("dev-A", []bool{true}); err != nil {
		t.Fatalf("RegisterActuatorStates: %v", err)
	}

	res := r.RegisterDeviceDetails("dev-A", []string{"A1", "A2"}, []string{"B1"})
	if !res.Changed {
		t.Fatal("Changed = false after actuator count change")
	}

	d, _ := r.Get("dev-A")
	if len(d.ActuatorStates) != 2 || d.ActuatorStates[0] || d.ActuatorStates[1] {
		t.Errorf("ActuatorStates = %v, want [false false]", d.ActuatorStates)
	}
}

func TestRegisterActuatorStates(t *testing.T) {
	r, _ := newTestRegistry()
	r.RegisterDeviceDetails("dev-A", []string{"A1", "A2"}, nil)

	res, err := r.RegisterActuatorStates("dev-A", []bool{true, false})
	if err != nil {
		t.Fatalf("RegisterActuatorStates: %v", err)
	}
	if res.IsNew || res.ConfigMissing || !res.Changed {
		t.Errorf("result = %+v, want changed only", res)
	}

	// Replay of an identical vector reports no change.
	res, err = r.RegisterActuatorStates("dev-A", []bool{true, false})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Changed {
		t.Error("Changed = true on identical replay")
	}
}

func TestRegisterActuatorStatesUnknownDevice(t *testing.T) {
	r, _ := newTestRegistry()

	res, err := r.RegisterActuatorStates("dev-A", []bool{true})
	if err != nil {
		t.Fatalf("RegisterActuatorStates: %v", err)
	}
	if !res.IsNew {
		t.Error("IsNew = false for unknown device")
	}
	if !res.ConfigMissing {
		t.Error("ConfigMissing = false with no details known")
	}
}

func TestRegisterActuatorStatesLengthMismatch(t *testing.T) {
	r, _ := newTestRegistry()
	r.RegisterDeviceDetails("dev-A", []string{"A1", "A2"}, nil)
	before, _ := r.Get("dev-A")

	_, err := r.RegisterActuatorStates("dev-A", []bool{true})
	if err == nil {
		t.Fatal("expected ErrStateLengthMismatch")
	}

	// No partial mutation alongside the error.
	after, _ := r.Get("dev-A")
	if after.LastSeenTime != before.LastSeenTime {
		t.Error("LastSeenTime mutated alongside error")
	}
	if len(after.ActuatorStates) != 2 {
		t.Errorf("ActuatorStates = %v, want untouched", after.ActuatorStates)
	}
}

func TestUpdateConnectionState(t *testing.T) {
	r, _ := newTestRegistry()

	res := r.UpdateConnectionState("dev-A", "ready")
	if !res.StateChanged || !res.CameOnline || res.WentOffline {
		t.Fatalf("result = %+v, want came-online", res)
	}

	d, _ := r.Get("dev-A")
	if !d.Connected || !d.IsHealthy || d.IsStale || d.AlertSent {
		t.Errorf("state = %+v, want connected and healthy", d)
	}

	// Ready twice in a row: no change.
	res = r.UpdateConnectionState("dev-A", "ready")
	if res.StateChanged {
		t.Error("StateChanged = true on repeated ready")
	}

	res = r.UpdateConnectionState("dev-A", "lost")
	if !res.StateChanged || !res.WentOffline || res.CameOnline {
		t.Fatalf("result = %+v, want went-offline", res)
	}
	d, _ = r.Get("dev-A")
	if d.Connected || d.IsHealthy || d.IsStale {
		t.Errorf("state = %+v, want disconnected and unhealthy", d)
	}
}

func TestRecordBoot(t *testing.T) {
	r, clk := newTestRegistry()

	res := r.RecordBoot("dev-A")
	if !res.StateChanged {
		t.Fatal("StateChanged = false for first boot")
	}

	d, _ := r.Get("dev-A")
	if !d.Connected || !d.IsHealthy || d.IsStale {
		t.Errorf("state = %+v, want connected and healthy", d)
	}
	if d.LastBootTime != clk.Now().UnixMilli() {
		t.Errorf("LastBootTime = %d, want now", d.LastBootTime)
	}

	// Boot on an already healthy device: no change.
	res = r.RecordBoot("dev-A")
	if res.StateChanged {
		t.Error("StateChanged = true for boot on healthy device")
	}
}

func TestRecordPingResponse(t *testing.T) {
	r, _ := newTestRegistry()

	// Create an unhealthy device.
	r.UpdateConnectionState("dev-A", "lost")

	res := r.RecordPingResponse("dev-A")
	if !res.StateChanged || !res.CameOnline {
		t.Fatalf("result = %+v, want recovery", res)
	}
	d, _ := r.Get("dev-A")
	if !d.IsHealthy || d.IsStale || d.AlertSent {
		t.Errorf("state = %+v, want healthy", d)
	}

	// A second response from a healthy device changes nothing.
	res = r.RecordPingResponse("dev-A")
	if res.StateChanged || res.CameOnline {
		t.Errorf("result = %+v, want no change", res)
	}
}

func TestUpdateHealthFromResult(t *testing.T) {
	r, _ := newTestRegistry()
	r.UpdateConnectionState("dev-A", "ready")

	// Stale marks the device stale once.
	res := r.UpdateHealthFromResult("dev-A", watchdog.Result{Verdict: watchdog.VerdictStale})
	if !res.StateChanged {
		t.Fatal("StateChanged = false for first stale")
	}
	res = r.UpdateHealthFromResult("dev-A", watchdog.Result{Verdict: watchdog.VerdictStale})
	if res.StateChanged {
		t.Error("StateChanged = true for repeated stale")
	}

	// OK recovers a stale device.
	res = r.UpdateHealthFromResult("dev-A", watchdog.Result{Verdict: watchdog.VerdictOK})
	if !res.StateChanged {
		t.Fatal("StateChanged = false recovering from stale")
	}
	d, _ := r.Get("dev-A")
	if !d.IsHealthy || d.IsStale {
		t.Errorf("state = %+v, want healthy", d)
	}

	// Unhealthy clears both flags.
	res = r.UpdateHealthFromResult("dev-A", watchdog.Result{Verdict: watchdog.VerdictUnhealthy, Reason: "x"})
	if !res.StateChanged {
		t.Fatal("StateChanged = false going unhealthy")
	}
	d, _ = r.Get("dev-A")
	if d.IsHealthy || d.IsStale {
		t.Errorf("state = %+v, want unhealthy", d)
	}

	// NeedsPing is a no-op.
	res = r.UpdateHealthFromResult("dev-A", watchdog.Result{Verdict: watchdog.VerdictNeedsPing})
	if res.StateChanged {
		t.Error("StateChanged = true for needs-ping")
	}

	// Unknown devices are left alone.
	res = r.UpdateHealthFromResult("ghost", watchdog.Result{Verdict: watchdog.VerdictOK})
	if res.StateChanged {
		t.Error("StateChanged = true for unknown device")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (no create-on-write)", r.Count())
	}
}

func TestRecordAlertSent(t *testing.T) {
	r, _ := newTestRegistry()

	res := r.RecordAlertSent("dev-A")
	if !res.StateChanged {
		t.Fatal("StateChanged = false for first alert")
	}
	d, _ := r.Get("dev-A")
	if !d.AlertSent || d.IsHealthy {
		t.Errorf("state = %+v, want alert latched and unhealthy", d)
	}

	res = r.RecordAlertSent("dev-A")
	if res.StateChanged {
		t.Error("StateChanged = true for repeated alert")
	}
}

func TestPruneNotIn(t *testing.T) {
	r, _ := newTestRegistry()
	r.RecordBoot("dev-A")
	r.RecordBoot("dev-B")
	r.RecordBoot("dev-C")

	pruned := r.PruneNotIn([]string{"dev-A"})

	if pruned != 2 {
		t.Errorf("PruneNotIn() = %d, want 2", pruned)
	}
	if _, ok := r.Get("dev-A"); !ok {
		t.Error("surviving device was pruned")
	}
	if _, ok := r.Get("dev-B"); ok {
		t.Error("removed device survived")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r, _ := newTestRegistry()
	r.RegisterDeviceDetails("dev-A", []string{"A1"}, []string{"B1"})

	snap := r.Snapshot()
	snap["dev-A"].ActuatorIDs[0] = "mutated"
	snap["dev-A"].Connected = true

	d, _ := r.Get("dev-A")
	if d.ActuatorIDs[0] != "A1" {
		t.Error("snapshot mutation corrupted registry slice")
	}
	if d.Connected {
		t.Error("snapshot mutation corrupted registry flags")
	}
}
