// Package errs defines the error taxonomy shared by services and the HTTP layer.
package errs

import (
	"errors"
	"fmt"
)

// Reason is a stable machine-readable code carried by every typed error.
type Reason string

const (
	ReasonInvalidInput       Reason = "invalid_input"
	ReasonNotFound           Reason = "not_found"
	ReasonWrongType          Reason = "wrong_type"
	ReasonWrongStatus        Reason = "wrong_status"
	ReasonWrongRenewalStatus Reason = "wrong_renewal_status"
	ReasonAlreadyRenewed     Reason = "already_renewed"
	ReasonAlreadyDeclined    Reason = "already_declined"
	ReasonDateRule           Reason = "date_rule"
	ReasonOverlap            Reason = "overlap"
	ReasonFinalReminder      Reason = "final_reminder"
	ReasonStale              Reason = "stale"
	ReasonDuplicate          Reason = "duplicate"
	ReasonPermissionDenied   Reason = "permission_denied"
	ReasonExternal           Reason = "external_dependency"
)

// ValidationError means the input had the wrong shape. Nothing was persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Reason() Reason { return ReasonInvalidInput }

// PreconditionError means the input was well formed but the record is in the wrong state.
type PreconditionError struct {
	Code    Reason
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition %s: %s", e.Code, e.Message)
}

func (e *PreconditionError) Reason() Reason { return e.Code }

// NotFoundError is a precondition failure on a missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Reason() Reason { return ReasonNotFound }

// PermissionError means the caller may not act on the unit.
type PermissionError struct {
	UserID  string
	Message string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied for user %s: %s", e.UserID, e.Message)
}

func (e *PermissionError) Reason() Reason { return ReasonPermissionDenied }

// ExternalDependencyError wraps a failed call to a collaborator service.
type ExternalDependencyError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }

func (e *ExternalDependencyError) Reason() Reason { return ReasonExternal }

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func Precondition(code Reason, format string, args ...any) error {
	return &PreconditionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func Permission(userID, format string, args ...any) error {
	return &PermissionError{UserID: userID, Message: fmt.Sprintf(format, args...)}
}

func External(service, op string, err error) error {
	return &ExternalDependencyError{Service: service, Operation: op, Err: err}
}

// ReasonOf returns the reason of the first typed error in the chain, or "".
func ReasonOf(err error) Reason {
	var r interface{ Reason() Reason }
	if errors.As(err, &r) {
		return r.Reason()
	}
	return ""
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsPrecondition(err error) bool {
	var e *PreconditionError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsPermission(err error) bool {
	var e *PermissionError
	return errors.As(err, &e)
}

func IsExternal(err error) bool {
	var e *ExternalDependencyError
	return errors.As(err, &e)
}
