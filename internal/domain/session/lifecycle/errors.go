// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrSpawn         = errors.New("worker spawn failed")
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyExists = errors.New("session already exists")
	ErrValidation    = errors.New("validation failed")
	ErrTransientPoll = errors.New("stats not yet available")
	ErrWorkerCrash   = errors.New("worker exited unexpectedly")
	ErrIllegalState  = errors.New("illegal status transition")
)

// SpawnError reports a worker that could not be launched.
type SpawnError struct {
	SessionID string
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn worker for session %s: %v", e.SessionID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// NotFoundError reports an unknown session id.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.SessionID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// WorkerCrash describes an unexpected worker exit.
type WorkerCrash struct {
	SessionID string
	ExitCode  int
	Err       error
}

func (e *WorkerCrash) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker for session %s exited with code %d: %v", e.SessionID, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("worker for session %s exited with code %d", e.SessionID, e.ExitCode)
}

func (e *WorkerCrash) Unwrap() error { return e.Err }

func (e *WorkerCrash) Is(target error) bool { return target == ErrWorkerCrash }

// NewNotFound is shorthand for a NotFoundError.
func NewNotFound(id string) error { return &NotFoundError{SessionID: id} }

// NewValidation is shorthand for a ValidationError.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
