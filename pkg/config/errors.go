package config

import (
	"errors"
	"fmt"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrConfigNotLoaded is returned when attempting to access a config that hasn't been loaded
	ErrConfigNotLoaded = errors.New("configuration has not been loaded")

	// ErrNilPointer is returned when a nil pointer is provided to Load
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	// ErrValidation is returned when a parsed configuration violates its constraints
	ErrValidation = errors.New("configuration validation failed")

	// ErrSourceUnavailable is returned when the dynamic override source cannot be read
	ErrSourceUnavailable = errors.New("dynamic config source unavailable")

	// ErrSourceNotFound is returned when the dynamic override document does not exist
	ErrSourceNotFound = errors.New("dynamic config source not found")

	// ErrSourceAccessDenied is returned when credentials do not allow reading the source
	ErrSourceAccessDenied = errors.New("dynamic config source access denied")

	// ErrInvalidSource is returned for a malformed source location or document
	ErrInvalidSource = errors.New("invalid dynamic config source")
)

// ValidationError names the offending setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
