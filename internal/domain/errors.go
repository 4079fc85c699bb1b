package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a task status change is not an edge
	// of the task state machine.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrDataIntegrity is returned when stored data cannot be processed as-is,
	// for example a task without any items.
	ErrDataIntegrity = errors.New("data integrity violation")
)
