// Package watchdog implements the liveness state machine for LSH devices.
//
// A device is interrogated with a ping after a configurable period of
// silence. A ping that goes unanswered past the ping timeout marks the
// device stale and rearms the ping; a device that never appeared on the
// network at all is unhealthy outright.
//
// The watchdog holds only its own ping bookkeeping. It never mutates device
// state; the registry applies the verdicts it produces.
package watchdog

import (
	"time"

	"github.com/lsh-protocol/lshd/pkg/clock"
)

// Verdict classifies a device's liveness.
type Verdict int

const (
	// VerdictOK means the device is live or a ping is still within budget.
	VerdictOK Verdict = iota

	// VerdictNeedsPing means the device has been silent long enough that a
	// ping should be sent.
	VerdictNeedsPing

	// VerdictStale means a ping went unanswered past the ping timeout.
	VerdictStale

	// VerdictUnhealthy means the device is considered lost.
	VerdictUnhealthy
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictNeedsPing:
		return "needs-ping"
	case VerdictStale:
		return "stale"
	case VerdictUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of a liveness check.
type Result struct {
	// Verdict is the liveness classification.
	Verdict Verdict

	// Reason is set for VerdictUnhealthy.
	Reason string
}

// ReasonNeverSeen is the unhealthy reason for a configured device that
// never entered the registry.
const ReasonNeverSeen = "Never seen on the network."

// Watchdog decides device liveness from silence durations and per-device
// ping bookkeeping. The orchestrator serialises all calls.
type Watchdog struct {
	clock clock.Clock

	// interrogateThreshold is the silence duration that triggers a ping.
	interrogateThreshold time.Duration

	// pingTimeout is how long to wait for a ping response before declaring
	// the device stale.
	pingTimeout time.Duration

	// pings records when a ping was last sent per device. The entry is
	// created when a ping is issued and cleared on any device activity.
	pings map[string]time.Time
}

// New creates a watchdog with the given thresholds.
func New(clk clock.Clock, interrogateThreshold, pingTimeout time.Duration) *Watchdog {
	return &Watchdog{
		clock:                clk,
		interrogateThreshold: interrogateThreshold,
		pingTimeout:          pingTimeout,
		pings:                make(map[string]time.Time),
	}
}

// CheckDeviceHealth evaluates liveness for one device. exists reports
// whether the device has a registry entry; lastSeenMillis is its
// LastSeenTime (zero meaning never seen).
func (w *Watchdog) CheckDeviceHealth(name string, exists bool, lastSeenMillis int64) Result {
	if !exists {
		return Result{Verdict: VerdictUnhealthy, Reason: ReasonNeverSeen}
	}

	now := w.clock.Now()

	if lastSeenMillis == 0 {
		// Shell entry: probe before declaring failure.
		w.pings[name] = now
		return Result{Verdict: VerdictNeedsPing}
	}

	silence := now.Sub(time.UnixMilli(lastSeenMillis))
	if silence < w.interrogateThreshold {
		delete(w.pings, name)
		return Result{Verdict: VerdictOK}
	}

	if sentAt, ok := w.pings[name]; ok {
		if now.Sub(sentAt) > w.pingTimeout {
			// Unanswered past budget: declare stale and rearm.
			w.pings[name] = now
			return Result{Verdict: VerdictStale}
		}
		// Ping outstanding, still within budget.
		return Result{Verdict: VerdictOK}
	}

	w.pings[name] = now
	return Result{Verdict: VerdictNeedsPing}
}

// OnDeviceActivity clears ping bookkeeping for a device. Called before any
// message from the device is routed.
func (w *Watchdog) OnDeviceActivity(name string) {
	delete(w.pings, name)
}

// PendingPings returns the number of devices with an outstanding ping.
func (w *Watchdog) PendingPings() int {
	return len(w.pings)
}
