// Package apperrors defines the error taxonomy shared by repositories,
// services and the CLI. Callers match with errors.Is on the sentinels or
// errors.As on the typed errors.
package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

var (
	// ErrNotFound is returned when an invoice, client, project or source does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input, before anything is written.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when an invoice transition is not allowed from its current status.
	ErrInvalidState = errors.New("invalid invoice state")

	// ErrConsistency is returned when confirm is blocked by conflicts.
	ErrConsistency = errors.New("invoice is inconsistent with its sources")

	// ErrSourceLocked is returned when a locked timesheet or expense is edited,
	// deleted, or locked to a second invoice.
	ErrSourceLocked = errors.New("source is locked to an invoice")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StateError reports a transition attempted from the wrong status.
type StateError struct {
	Op     string
	Status domain.InvoiceStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s invoice in status %s", e.Op, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// ConsistencyError carries every conflict found, in line order.
type ConsistencyError struct {
	InvoiceID int64
	Conflicts []domain.Conflict
}

func (e *ConsistencyError) Error() string {
	msgs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		msgs[i] = c.Message
	}
	return fmt.Sprintf("invoice %d has %d conflict(s): %s", e.InvoiceID, len(e.Conflicts), strings.Join(msgs, "; "))
}

func (e *ConsistencyError) Unwrap() error {
	return ErrConsistency
}

// NotFound wraps ErrNotFound with the entity kind and ID.
func NotFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}
