// Package config loads tool configuration from Klipper-style INI files
// or YAML documents into named sections with typed, tracked accessors.
package config

import (
	"fmt"

	hosterrors "adaptive-mesh/pkg/errors"
)

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *hosterrors.HostError {
	return hosterrors.New(hosterrors.ErrConfigOption, "must be specified").
		SetSection(section).
		SetOption(option)
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *hosterrors.HostError {
	return hosterrors.ConfigSectionError(section)
}

// ErrInvalidValue returns an error for a value that does not parse as
// the expected type.
func ErrInvalidValue(section, option, value, expected string, cause error) *hosterrors.HostError {
	return hosterrors.ConfigTypeError(section, option, value, expected, cause)
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value int, constraint string) *hosterrors.HostError {
	return hosterrors.New(hosterrors.ErrConfigOption, fmt.Sprintf("value %d %s", value, constraint)).
		SetSection(section).
		SetOption(option)
}

// ErrInvalidChoice returns an error for an invalid choice value.
func ErrInvalidChoice(section, option, value string, choices []string) *hosterrors.HostError {
	return hosterrors.New(hosterrors.ErrConfigOption, fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices)).
		SetSection(section).
		SetOption(option)
}
