package service

import (
	"github.com/lsh-protocol/lshd/pkg/protocol"
	"github.com/lsh-protocol/lshd/pkg/watchdog"
)

// reasonPingTimeout is the alert reason for devices that stopped answering
// pings.
const reasonPingTimeout = "No response to ping."

// reasonVerificationTimeout is the alert reason for devices that never
// answered the initial verification ping.
const reasonVerificationTimeout = "Did not respond to initial verification ping."

// RunWatchdogCheck sweeps every configured device through the liveness
// machine. It emits ping commands (a single broadcast when the whole fleet
// needs one) and a single aggregated alert for newly unhealthy devices.
func (o *Orchestrator) RunWatchdogCheck() Result {
	var res Result
	if o.cfg == nil {
		return res
	}

	names := o.cfg.DeviceNames()
	var toPing []string
	var alerts []alertEntry

	for _, name := range names {
		dev, exists := o.registry.Get(name)

		// Already alerted and awaiting recovery: leave it alone.
		if exists && !dev.IsHealthy && dev.AlertSent {
			continue
		}

		var lastSeen int64
		if exists {
			lastSeen = dev.LastSeenTime
		}

		wres := o.watchdog.CheckDeviceHealth(name, exists, lastSeen)
		if hr := o.registry.UpdateHealthFromResult(name, wres); hr.StateChanged {
			res.StateChanged = true
		}

		switch wres.Verdict {
		case watchdog.VerdictNeedsPing:
			toPing = append(toPing, name)
		case watchdog.VerdictStale:
			toPing = append(toPing, name)
			alerts = append(alerts, alertEntry{name: name, reason: reasonPingTimeout})
		case watchdog.VerdictUnhealthy:
			alerts = append(alerts, alertEntry{name: name, reason: wres.Reason})
			if ar := o.registry.RecordAlertSent(name); ar.StateChanged {
				res.StateChanged = true
			}
		}
	}

	if len(toPing) == len(names) && len(toPing) > 0 {
		res.logf("Pinging all %d devices with a single broadcast ping.", len(toPing))
		res.ServiceMessages = append(res.ServiceMessages, OutboundMessage{
			Topic:   o.topics.ServiceTopic,
			Payload: protocol.NewPing(),
		})
	} else if len(toPing) > 0 {
		res.logf("Pinging %d devices individually.", len(toPing))
		res.StaggerLSH = true
		for _, name := range toPing {
			res.LSHMessages = append(res.LSHMessages, OutboundMessage{
				Topic:   o.topics.DeviceInbox(name),
				Payload: protocol.NewPing(),
			})
		}
	}

	if len(alerts) > 0 {
		res.Alerts = append(res.Alerts, formatAggregateAlert(alerts))
	}

	return res
}

// CleanupPendingClicks garbage-collects expired click transactions. Returns
// a log line when anything was removed, otherwise the empty string.
func (o *Orchestrator) CleanupPendingClicks() string {
	if n := o.clicks.CleanupExpired(); n > 0 {
		return sprintf("Cleaned up %d expired click transaction(s).", n)
	}
	return ""
}

// VerifyInitialDeviceStates pings every configured device that is not yet
// connected. Returns the pinged device names for the follow-up
// RunFinalVerification call.
func (o *Orchestrator) VerifyInitialDeviceStates() (Result, []string) {
	var res Result
	if o.cfg == nil {
		return res, nil
	}

	var pinged []string
	for _, name := range o.cfg.DeviceNames() {
		dev, ok := o.registry.Get(name)
		if ok && dev.Connected {
			continue
		}
		pinged = append(pinged, name)
		res.LSHMessages = append(res.LSHMessages, OutboundMessage{
			Topic:   o.topics.DeviceInbox(name),
			Payload: protocol.NewPing(),
		})
	}

	if len(pinged) > 0 {
		res.StaggerLSH = true
		res.logf("Sent initial verification ping to %d device(s).", len(pinged))
	}

	return res, pinged
}

// RunFinalVerification marks every named device that is still not healthy
// as unhealthy and alerts once for the lot.
func (o *Orchestrator) RunFinalVerification(names []string) Result {
	var res Result

	var alerts []alertEntry
	for _, name := range names {
		dev, ok := o.registry.Get(name)
		if ok && dev.IsHealthy {
			continue
		}

		alerts = append(alerts, alertEntry{name: name, reason: reasonVerificationTimeout})
		o.registry.UpdateHealthFromResult(name, watchdog.Result{
			Verdict: watchdog.VerdictUnhealthy,
			Reason:  reasonVerificationTimeout,
		})
		o.registry.RecordAlertSent(name)
	}

	if len(alerts) > 0 {
		res.StateChanged = true
		res.Alerts = append(res.Alerts, formatAggregateAlert(alerts))
	}

	return res
}

// GetStartupCommands asks every configured device to announce its
// configuration and actuator states, staggered to avoid a thundering herd.
func (o *Orchestrator) GetStartupCommands() Result {
	var res Result
	if o.cfg == nil {
		return res
	}

	names := o.cfg.DeviceNames()
	for _, name := range names {
		inbox := o.topics.DeviceInbox(name)
		res.LSHMessages = append(res.LSHMessages,
			OutboundMessage{Topic: inbox, Payload: protocol.NewSendDeviceDetails()},
			OutboundMessage{Topic: inbox, Payload: protocol.NewSendActuatorsState()},
		)
	}

	if len(names) > 0 {
		res.StaggerLSH = true
		res.logf("Requesting details and states from %d configured device(s).", len(names))
	}

	return res
}
