package telemetry

import "errors"

// Sentinel errors for the telemetry package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTransportUnavailable is returned when a command is sent before the
	// MQTT transport has been started (broker host unconfigured).
	ErrTransportUnavailable = errors.New("telemetry: transport unavailable")
)
