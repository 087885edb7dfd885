package service

import (
	"errors"
	"strings"

	"github.com/lsh-protocol/lshd/pkg/click"
	"github.com/lsh-protocol/lshd/pkg/config"
	"github.com/lsh-protocol/lshd/pkg/protocol"
)

// handleClickRequest runs phase one of the click two-phase commit: validate
// the request, remember the transaction, and acknowledge or fail over.
func (o *Orchestrator) handleClickRequest(res *Result, device string, c protocol.NetworkClick, payload []byte) {
	key := click.Key(device, c.ButtonID, c.ClickType)

	action, err := o.validateClickRequest(device, c)
	if err != nil {
		var cve *ClickValidationError
		if !errors.As(err, &cve) {
			res.errorf("Click request %s failed: %s", key, err.Error())
			return
		}
		switch cve.Scope {
		case ScopeClick:
			res.Alerts = append(res.Alerts, formatUnhealthyAlert(device, cve.Reason, string(payload)))
			res.LSHMessages = append(res.LSHMessages, OutboundMessage{
				Topic:   o.topics.DeviceInbox(device),
				Payload: protocol.NewClickFailover(c.ClickType, c.ButtonID),
			})
		case ScopeGeneral:
			res.errorf("Click request %s failed: %s", key, cve.Reason)
			res.LSHMessages = append(res.LSHMessages, OutboundMessage{
				Topic:   o.topics.DeviceInbox(device),
				Payload: protocol.NewGeneralFailover(),
			})
		}
		return
	}

	o.clicks.Start(key, action.Actors, action.OtherActors)
	res.logf("Click request accepted: %s.", key)
	res.LSHMessages = append(res.LSHMessages, OutboundMessage{
		Topic:   o.topics.DeviceInbox(device),
		Payload: protocol.NewClickAck(c.ClickType, c.ButtonID),
	})
}

// validateClickRequest checks that the click maps to a configured action
// whose primary targets are all online.
func (o *Orchestrator) validateClickRequest(device string, c protocol.NetworkClick) (*config.ButtonAction, error) {
	devCfg, ok := o.cfg.Device(device)
	if !ok {
		return nil, &ClickValidationError{Reason: reasonNoAction, Scope: ScopeClick}
	}

	action, ok := devCfg.ButtonAction(c.ClickType, c.ButtonID)
	if !ok {
		return nil, &ClickValidationError{Reason: reasonNoAction, Scope: ScopeClick}
	}

	if len(action.Actors) == 0 && len(action.OtherActors) == 0 {
		return nil, &ClickValidationError{Reason: reasonNoTargets, Scope: ScopeClick}
	}

	var offline []string
	for _, actor := range action.Actors {
		target, ok := o.registry.Get(actor.Name)
		if !ok || !target.Connected {
			offline = append(offline, actor.Name)
		}
	}
	if len(offline) > 0 {
		return nil, &ClickValidationError{
			Reason: sprintf("Target actor(s) are offline: %s.", strings.Join(offline, ",")),
			Scope:  ScopeClick,
		}
	}

	return action, nil
}

// handleClickConfirmation runs phase two: consume the pending transaction
// and synthesize the actuator commands.
func (o *Orchestrator) handleClickConfirmation(res *Result, device string, c protocol.NetworkClick) {
	key := click.Key(device, c.ButtonID, c.ClickType)

	tx, ok := o.clicks.Consume(key)
	if !ok {
		res.warnf("Received confirmation for an expired or unknown click: %s.", key)
		return
	}

	stateToSet := o.executeClickLogic(res, tx, c.ClickType)
	res.logf("Click confirmed: %s. Setting state=%t.", key, stateToSet)

	res.LSHMessages = append(res.LSHMessages, o.buildStateCommands(res, tx.Actors, stateToSet)...)

	if len(tx.OtherActors) > 0 {
		res.OtherActors = &OtherActorsCommand{
			Names:      tx.OtherActors,
			StateToSet: stateToSet,
			Payload:    sprintf("Set state=%t for external actors.", stateToSet),
		}
	}
}

// executeClickLogic decides the group state for a confirmed click. A
// super-long click always switches everything off; a long click asks the
// smart toggle.
func (o *Orchestrator) executeClickLogic(res *Result, tx *click.Transaction, ct protocol.ClickType) bool {
	if ct == protocol.ClickSuperLong {
		return false
	}

	st := o.registry.SmartToggle(tx.Actors, tx.OtherActors, o.ctx, o.topics.ContextKey)
	decision := "OFF"
	if st.StateToSet {
		decision = "ON"
	}
	res.logf("Smart Toggle: %d/%d active. Decision: %s", st.Active, st.Total, decision)
	if st.Warning != "" {
		res.warnf("%s", st.Warning)
	}
	return st.StateToSet
}

// buildStateCommands synthesizes the per-actor actuator commands. An actor
// targeting exactly one specific actuator gets the single-actuator form;
// everything else gets a full state vector.
func (o *Orchestrator) buildStateCommands(res *Result, actors []config.Actor, stateToSet bool) []OutboundMessage {
	var out []OutboundMessage
	for _, actor := range actors {
		inbox := o.topics.DeviceInbox(actor.Name)

		if !actor.AllActuators && len(actor.Actuators) == 1 {
			out = append(out, OutboundMessage{
				Topic:   inbox,
				Payload: protocol.NewApplySingleActuatorState(actor.Actuators[0], stateToSet),
			})
			continue
		}

		target, ok := o.registry.Get(actor.Name)
		if !ok {
			res.logf("Actor '%s' disappeared from the registry, skipping.", actor.Name)
			continue
		}

		vector := append([]bool{}, target.ActuatorStates...)
		if actor.AllActuators {
			for i := range vector {
				vector[i] = stateToSet
			}
		} else {
			for _, id := range actor.Actuators {
				// Unknown actuator IDs are skipped silently.
				if idx, ok := target.ActuatorIndex(id); ok && idx < len(vector) {
					vector[idx] = stateToSet
				}
			}
		}

		out = append(out, OutboundMessage{
			Topic:   inbox,
			Payload: protocol.NewApplyAllActuatorsState(vector),
		})
	}
	return out
}
