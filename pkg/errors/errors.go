// Unified error handling for the adaptive mesh tools
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Settings could not be resolved for a run
	ErrSettings ErrorCode = "SETTINGS"

	// G-code stream errors
	ErrGCodeRead  ErrorCode = "GCODE_READ"
	ErrGCodeWrite ErrorCode = "GCODE_WRITE"

	// Storage and transport errors
	ErrHistory ErrorCode = "HISTORY"
	ErrUpload  ErrorCode = "UPLOAD"
)

// HostError is the unified error type for the tools
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// File is the file being processed (if available)
	File string

	// Section is the config section or context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	switch {
	case e.File != "":
		msg = fmt.Sprintf("[%s] %s: %s", e.Code, e.File, e.Message)
	case e.Section != "" && e.Option != "":
		msg = fmt.Sprintf("[%s:%s.%s] %s", e.Code, e.Section, e.Option, e.Message)
	case e.Section != "":
		msg = fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetFile sets the file being processed
func (e *HostError) SetFile(file string) *HostError {
	e.File = file
	return e
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, "section not found").SetSection(section)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(path string, err error) *HostError {
	return Wrap(err, ErrConfigValidation, "config does not match schema").SetFile(path)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value string, targetType string, err error) *HostError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("failed to parse '%s' as %s", value, targetType)).
		SetSection(section).
		SetOption(option)
}

// SettingsError creates an error for an unusable settings source
func SettingsError(source string, err error) *HostError {
	return Wrap(err, ErrSettings, "settings unavailable").SetContext("source", source)
}

// G-code errors

// GCodeReadError creates an error for a G-code input failure
func GCodeReadError(file string, err error) *HostError {
	return Wrap(err, ErrGCodeRead, "failed to read G-code").SetFile(file)
}

// GCodeWriteError creates an error for a G-code output failure
func GCodeWriteError(file string, err error) *HostError {
	return Wrap(err, ErrGCodeWrite, "failed to write G-code").SetFile(file)
}

// HistoryError creates an error for a history store failure
func HistoryError(operation string, err error) *HostError {
	return Wrap(err, ErrHistory, fmt.Sprintf("history %s failed", operation))
}

// UploadError creates an error for a rejected upload
func UploadError(file string, reason string) *HostError {
	return New(ErrUpload, reason).SetFile(file)
}

// Is checks if any error in err's chain carries the given code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var hostErr *HostError
		if !stderrors.As(err, &hostErr) {
			return false
		}
		if hostErr.Code == code {
			return true
		}
		err = hostErr.Err
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsGCode checks if error is a G-code stream error
func IsGCode(err error) bool {
	return Is(err, ErrGCodeRead) || Is(err, ErrGCodeWrite)
}
