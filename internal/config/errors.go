package config

import "errors"

var (
	// ErrConfiguration is returned when the configuration is missing or invalid
	ErrConfiguration = errors.New("invalid configuration")
)
