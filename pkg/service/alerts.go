package service

import (
	"fmt"
	"strings"
)

// alertEntry is one device/reason pair for an aggregated alert.
type alertEntry struct {
	name   string
	reason string
}

// formatUnhealthyAlert renders an alert for a single unhealthy device.
// details carries the offending payload for click failures, if any.
func formatUnhealthyAlert(name, reason, details string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*ALERT* Device `%s` is unhealthy.\nReason: %s", name, reason)
	if details != "" {
		fmt.Fprintf(&b, "\nDetails: `%s`", details)
	}
	return b.String()
}

// formatRecoveryAlert renders a recovery notice for a single device.
func formatRecoveryAlert(name string) string {
	return fmt.Sprintf("*RECOVERED* Device `%s` is back online.", name)
}

// formatAggregateAlert renders one alert covering every unhealthy device
// found in a sweep.
func formatAggregateAlert(entries []alertEntry) string {
	if len(entries) == 1 {
		return formatUnhealthyAlert(entries[0].name, entries[0].reason, "")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*ALERT* %d devices are unhealthy:", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n- `%s`: %s", e.name, e.reason)
	}
	return b.String()
}
