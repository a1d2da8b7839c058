package lifecycle

import "errors"

var (
	// ErrUnknownTransition is returned when a notification names no known transition
	ErrUnknownTransition = errors.New("unknown lifecycle transition")
)
