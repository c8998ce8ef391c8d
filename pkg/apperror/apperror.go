package apperror

import (
	"errors"
	"net/http"

	"github.com/tempora/tempora/internal/domain"
)

// AppError is the transport-facing shape of a failure: a stable code, a
// message safe to show callers, and an HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Map translates an error into its transport representation. Each of the
// domain kinds gets a stable, distinct code; anything unclassified is an
// infrastructure failure and is reported opaquely.
func Map(err error) *AppError {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return &AppError{Code: "VALIDATION_FAILED", Message: validationErr.Message, Status: http.StatusBadRequest}
	}

	var statusErr *domain.InvalidStatusError
	if errors.As(err, &statusErr) {
		return &AppError{Code: "TIME_ENTRY_INVALID_STATUS", Message: statusErr.Error(), Status: http.StatusUnprocessableEntity}
	}

	switch {
	case errors.Is(err, domain.ErrEntryNotFound):
		return &AppError{Code: "TIME_ENTRY_NOT_FOUND", Message: err.Error(), Status: http.StatusNotFound}
	case errors.Is(err, domain.ErrTimerAlreadyRunning):
		return &AppError{Code: "TIMER_ALREADY_RUNNING", Message: err.Error(), Status: http.StatusConflict}
	case errors.Is(err, domain.ErrTimerNotRunning):
		return &AppError{Code: "TIMER_NOT_RUNNING", Message: err.Error(), Status: http.StatusConflict}
	case errors.Is(err, domain.ErrEntryOverlap):
		return &AppError{Code: "TIME_ENTRY_OVERLAP", Message: err.Error(), Status: http.StatusConflict}
	case errors.Is(err, domain.ErrEntryLocked):
		return &AppError{Code: "TIME_ENTRY_LOCKED", Message: err.Error(), Status: http.StatusLocked}
	default:
		return &AppError{Code: "INTERNAL_ERROR", Message: "an unexpected error occurred", Status: http.StatusInternalServerError}
	}
}
