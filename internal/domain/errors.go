package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind identifies a class of domain failure
type ErrorKind string

const (
	KindValidation        ErrorKind = "ValidationError"
	KindUnknownDependency ErrorKind = "UnknownDependency"
	KindCycleDetected     ErrorKind = "CycleDetected"
	KindHasDependents     ErrorKind = "HasDependents"
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindDependenciesUnmet ErrorKind = "DependenciesUnmet"
	KindProjectNotFound   ErrorKind = "ProjectNotFound"
	KindPlanNotFound      ErrorKind = "PlanNotFound"
	KindTaskNotFound      ErrorKind = "TaskNotFound"
	KindDuplicateName     ErrorKind = "DuplicateName"
	KindStorageFailure    ErrorKind = "StorageFailure"
)

// Sentinels for errors.Is. Matching compares kinds only.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrUnknownDependency = &Error{Kind: KindUnknownDependency}
	ErrCycleDetected     = &Error{Kind: KindCycleDetected}
	ErrHasDependents     = &Error{Kind: KindHasDependents}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrDependenciesUnmet = &Error{Kind: KindDependenciesUnmet}
	ErrProjectNotFound   = &Error{Kind: KindProjectNotFound}
	ErrPlanNotFound      = &Error{Kind: KindPlanNotFound}
	ErrTaskNotFound      = &Error{Kind: KindTaskNotFound}
	ErrDuplicateName     = &Error{Kind: KindDuplicateName}
	ErrStorageFailure    = &Error{Kind: KindStorageFailure}
)

// Error is a structured domain error: kind, human-readable detail and the
// identifiers it concerns.
type Error struct {
	Kind    ErrorKind
	Message string
	IDs     []string
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.IDs) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(e.IDs, ", "))
		sb.WriteString("]")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind ErrorKind, msg string, ids ...string) *Error {
	return &Error{Kind: kind, Message: msg, IDs: ids}
}

// Validationf creates a ValidationError with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps a persistence error.
func StorageFailure(op string, err error) *Error {
	return &Error{Kind: KindStorageFailure, Message: op, Err: err}
}

// KindOf extracts the domain kind of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IDsOf returns the identifiers attached to a domain error.
func IDsOf(err error) []string {
	var de *Error
	if errors.As(err, &de) {
		return de.IDs
	}
	return nil
}

// MessageOf returns the human-readable detail of err without the kind and
// id decorations of Error().
func MessageOf(err error) string {
	var de *Error
	if !errors.As(err, &de) {
		return err.Error()
	}
	if de.Err != nil {
		return de.Message + ": " + de.Err.Error()
	}
	return de.Message
}
