/*
errors.go - Centralized error types for the checklist engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps them to status codes with the helpers below.

ERROR CATEGORIES:
  1. Not found - task or instance does not exist (or no longer derives)
  2. Client errors - invalid task definition, status or key
  3. Authorization - caller is not responsible for the instance

FAIL-SOFT NOTE:
  The read path (expansion, listing) does not return these for bad data:
  unparsable dates, unknown periodicities and unknown countries yield empty
  results and a log line instead.

SEE ALSO:
  - assembler/status.go: returns ErrForbidden / ErrInvalidStatus
  - factory/task.go: returns ValidationError
*/
package checklist

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTaskNotFound is returned when a referenced task doesn't exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInstanceNotFound is returned when a key no longer matches any
	// instance derived from its task (edited task, or a forged key).
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrForbidden is returned when the caller may not mutate an instance.
	ErrForbidden = errors.New("not allowed to change this instance")

	// ErrInvalidStatus is returned for statuses that cannot be written.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTask is returned when a task definition is malformed.
	ErrInvalidTask = errors.New("invalid task definition")

	// ErrInvalidKey is returned when an instance key cannot be parsed.
	ErrInvalidKey = errors.New("invalid instance key")

	// ErrUserNotFound is returned when the acting user is unknown.
	ErrUserNotFound = errors.New("user not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one invalid field of a task definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidTask
}

// ForbiddenError explains an authorization denial.
type ForbiddenError struct {
	UserID    UserID
	Key       InstanceKey
	Delegated bool
}

func (e *ForbiddenError) Error() string {
	if e.Delegated {
		return fmt.Sprintf("user %s may not change %s: delegated to another user for that day", e.UserID, e.Key)
	}
	return fmt.Sprintf("user %s is not assigned to %s", e.UserID, e.Key)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidTask) ||
		errors.Is(err, ErrInvalidKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsForbidden returns true for authorization denials.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
