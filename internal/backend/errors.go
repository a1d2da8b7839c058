package backend

import "errors"

var (
	// ErrBackendUnavailable is returned when the telemetry backend cannot accept
	// an event or metric. Callers treat it as transient.
	ErrBackendUnavailable = errors.New("telemetry backend unavailable")
)
