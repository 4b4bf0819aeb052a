// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate provides configuration validation utilities.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error represents a validation error
type Error struct {
	Field   string // Field name that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
}

// Error implements the error interface
func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors and can produce a ValidationError when invalid.
type Validator struct {
	errors []Error
}

// ValidationError bundles multiple validation errors into a single error value.
type ValidationError struct {
	errors []Error
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		errors: make([]Error, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// IsValid returns true if no errors have been accumulated
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all accumulated validation errors
func (v *Validator) Errors() []Error {
	return v.errors
}

// Err converts the accumulated validation errors into an error value.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// Errors returns the individual validation errors making up the validation failure.
func (e ValidationError) Errors() []Error {
	return e.errors
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	if len(e.errors) == 0 {
		return ""
	}
	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}

	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// URL validates a URL string
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}

	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
		return
	}

	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}

	if len(allowedSchemes) > 0 && !slices.Contains(allowedSchemes, u.Scheme) {
		v.AddError(field,
			fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes),
			value)
	}
}

// Port validates a port number (1-65535)
func (v *Validator) Port(field string, port int) {
	if port <= 0 || port > 65535 {
		v.AddError(field,
			fmt.Sprintf("port must be between 1 and 65535, got %d", port),
			port)
	}
}

// ListenAddr validates a host:port listen address. The host may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid port %q", portStr), addr)
		return
	}
	// Port 0 asks the kernel for a free port.
	if port < 0 || port > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 0 and 65535, got %d", port), addr)
	}
}

// Range validates that value is within [minVal, maxVal]
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field,
			fmt.Sprintf("must be between %d and %d, got %d", minVal, maxVal, value),
			value)
	}
}

// NotEmpty validates that a string is not empty
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "cannot be empty", value)
	}
}

// OneOf validates that value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field,
			fmt.Sprintf("must be one of %v, got %q", allowed, value),
			value)
	}
}

// Positive validates that an integer is positive
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("must be positive, got %d", value), value)
	}
}

// PositiveDuration validates that a duration is greater than zero
func (v *Validator) PositiveDuration(field string, d time.Duration) {
	if d <= 0 {
		v.AddError(field, fmt.Sprintf("must be positive, got %s", d), d)
	}
}

// NonNegativeDuration validates that a duration is zero or greater
func (v *Validator) NonNegativeDuration(field string, d time.Duration) {
	if d < 0 {
		v.AddError(field, fmt.Sprintf("must not be negative, got %s", d), d)
	}
}

// Ratio validates a float within [0, 1]
func (v *Validator) Ratio(field string, f float64) {
	if f < 0 || f > 1 {
		v.AddError(field, fmt.Sprintf("must be between 0 and 1, got %g", f), f)
	}
}

// WritableDirectory checks that path is (or can be created as) a writable directory.
// With mustExist the directory is not created.
func (v *Validator) WritableDirectory(field, path string, mustExist bool) {
	if strings.TrimSpace(path) == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	switch {
	case err == nil && !info.IsDir():
		v.AddError(field, "path exists but is not a directory", path)
		return
	case os.IsNotExist(err) && mustExist:
		v.AddError(field, "directory does not exist", path)
		return
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(clean, 0o750); mkErr != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", mkErr), path)
			return
		}
	case err != nil:
		v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
		return
	}

	probe, err := os.CreateTemp(clean, ".write-probe-*")
	if err != nil {
		v.AddError(field, fmt.Sprintf("directory is not writable: %v", err), path)
		return
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
}
