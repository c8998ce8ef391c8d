package domain

import "fmt"

// DomainError represents an expected, recoverable-by-caller outcome. These are
// returned as values, never panicked, and never wrapped into generic failures.
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// ValidationError marks input that was rejected before any persistence happened.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// InvalidStatusError reports an illegal lifecycle transition and carries both
// sides for diagnostics.
type InvalidStatusError struct {
	Current   EntryStatus
	Attempted string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("cannot %s a time entry in status %s", e.Attempted, e.Current)
}

var (
	ErrEntryNotFound       = NewDomainError("time entry not found")
	ErrTimerAlreadyRunning = NewDomainError("a timer is already running for this user")
	ErrTimerNotRunning     = NewDomainError("no running timer for this user")
	ErrEntryOverlap        = NewDomainError("time entry overlaps an existing entry")
	ErrEntryLocked         = NewDomainError("time entry is locked")
)
