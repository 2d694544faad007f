package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewNoPolicyAvailable signals that SLA tracking is suspended for a ticket.
// Callers surface it as a warning, never as a pipeline failure.
func NewNoPolicyAvailable(ticketID string) error {
	return NewDomainError("NO_POLICY_AVAILABLE", "no applicable SLA policy", http.StatusUnprocessableEntity,
		map[string]any{"ticket_id": ticketID})
}

// NewInvalidTimerTransition rejects an illegal timer state change; the
// previous state is left unchanged.
func NewInvalidTimerTransition(timerID, from, requested string) error {
	return NewDomainError("INVALID_TIMER_TRANSITION", "illegal timer state transition", http.StatusConflict,
		map[string]any{"timer_id": timerID, "from": from, "requested": requested})
}

// NewActionExecutionError wraps a single failed workflow action. Isolated per
// action; sibling actions and rules still run.
func NewActionExecutionError(actionKind string, err error) error {
	return &DomainError{
		Code:       "ACTION_EXECUTION_FAILED",
		Message:    fmt.Sprintf("workflow action %s failed", actionKind),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"action": actionKind},
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
