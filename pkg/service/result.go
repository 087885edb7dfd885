package service

import "time"

// OutboundMessage is one bus message to publish. The payload is a typed
// protocol struct; the adapter encodes it with the configured codec.
type OutboundMessage struct {
	// Topic is the destination topic.
	Topic string

	// Payload is the protocol payload to encode.
	Payload any
}

// OtherActorsCommand asks the adapter to fan a state change out to external
// (non-LSH) actuators.
type OtherActorsCommand struct {
	// Names are the external actor names.
	Names []string

	// StateToSet is the state to apply.
	StateToSet bool

	// Payload is a human-readable description of the command.
	Payload string
}

// Result is the structured outcome of one core entry call. Outbound
// messages are grouped by logical output port; the adapter translates them
// to wire actions.
type Result struct {
	// LSHMessages are commands addressed to LSH devices.
	LSHMessages []OutboundMessage

	// StaggerLSH asks the adapter to send LSHMessages with a randomized
	// 50-250 ms stagger instead of back to back.
	StaggerLSH bool

	// ServiceMessages are broadcasts on the service topic.
	ServiceMessages []OutboundMessage

	// OtherActors is the external fan-out command, if any.
	OtherActors *OtherActorsCommand

	// Alerts are human-readable markdown alert texts.
	Alerts []string

	// Logs, Warnings and Errors are diagnostic lines for the adapter's
	// logger.
	Logs     []string
	Warnings []string
	Errors   []string

	// StateChanged is true when observable registry state changed; the
	// adapter republishes the exposed registry snapshot on it.
	StateChanged bool
}

// logf appends a log line.
func (r *Result) logf(format string, args ...any) {
	r.Logs = append(r.Logs, sprintf(format, args...))
}

// warnf appends a warning line.
func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, sprintf(format, args...))
}

// errorf appends an error line.
func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, sprintf(format, args...))
}

// Empty reports whether the result carries nothing at all.
func (r *Result) Empty() bool {
	return len(r.LSHMessages) == 0 && len(r.ServiceMessages) == 0 &&
		r.OtherActors == nil && len(r.Alerts) == 0 && len(r.Logs) == 0 &&
		len(r.Warnings) == 0 && len(r.Errors) == 0 && !r.StateChanged
}

// Timing holds the orchestrator's timing knobs.
type Timing struct {
	// ClickTimeout bounds the gap between click request and confirmation.
	ClickTimeout time.Duration

	// InterrogateThreshold is the silence duration that triggers a ping.
	InterrogateThreshold time.Duration

	// PingTimeout is how long to wait for a ping response.
	PingTimeout time.Duration

	// ClickCleanupInterval is how often the adapter sweeps expired clicks.
	ClickCleanupInterval time.Duration

	// WatchdogInterval is how often the adapter runs the watchdog check.
	WatchdogInterval time.Duration

	// InitialStateTimeout is how long the adapter waits after config load
	// before running the final verification.
	InitialStateTimeout time.Duration
}

// DefaultTiming returns the standard timing knobs.
func DefaultTiming() Timing {
	return Timing{
		ClickTimeout:         3 * time.Second,
		InterrogateThreshold: 90 * time.Second,
		PingTimeout:          10 * time.Second,
		ClickCleanupInterval: 60 * time.Second,
		WatchdogInterval:     30 * time.Second,
		InitialStateTimeout:  30 * time.Second,
	}
}
