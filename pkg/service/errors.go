package service

import "fmt"

// sprintf is a local alias keeping result helpers terse.
var sprintf = fmt.Sprintf

// ClickScope distinguishes how a click validation failure is reported back
// to the source device.
type ClickScope int

const (
	// ScopeClick failures produce a click-scoped failover (c_f).
	ScopeClick ClickScope = iota

	// ScopeGeneral failures produce a general failover (c_gf).
	ScopeGeneral
)

// ClickValidationError rejects a network-click request.
type ClickValidationError struct {
	// Reason is the human-readable rejection reason.
	Reason string

	// Scope selects the failover command to emit.
	Scope ClickScope
}

// Error implements the error interface.
func (e *ClickValidationError) Error() string {
	return e.Reason
}

// Click validation reasons.
const (
	reasonNoAction       = "No action configured for this button."
	reasonNoTargets      = "Action configured with no targets."
	reasonConfigNotLoaded = "Configuration not loaded, ignoring message."
)
