package engine

import (
	"errors"
	"fmt"

	"orderline/internal/engine/auth"
	"orderline/internal/repo"
	"orderline/internal/workflow"
)

// ErrorKind classifies every failure the engine reports.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindIllegalTransition ErrorKind = "illegal_transition"
	KindAlreadyAssigned   ErrorKind = "already_assigned"
	KindNotOwner          ErrorKind = "not_owner"
	KindNotReleasable     ErrorKind = "not_releasable"
	KindNotClaimable      ErrorKind = "not_claimable"
	KindValidationFailed  ErrorKind = "validation_failed"
	KindConflict          ErrorKind = "conflict"
	KindStoreUnavailable  ErrorKind = "store_unavailable"
)

// Error is the single error type returned by engine operations. Message is
// safe to show to the caller; Err keeps the internal cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind when the target carries no message,
// so errors.Is(err, ErrNotFound) works for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
	ErrAlreadyAssigned   = &Error{Kind: KindAlreadyAssigned}
	ErrNotOwner          = &Error{Kind: KindNotOwner}
	ErrNotReleasable     = &Error{Kind: KindNotReleasable}
	ErrNotClaimable      = &Error{Kind: KindNotClaimable}
	ErrValidationFailed  = &Error{Kind: KindValidationFailed}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
)

// KindOf returns the kind of an engine error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidationFailed, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("item %s not found", id)}
}

// storeErr classifies errors coming back from the repository.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "not found", Err: err}
	case errors.Is(err, repo.ErrVersionConflict):
		return &Error{Kind: KindConflict, Message: "item was modified concurrently; reload and retry", Err: err}
	}
	return &Error{Kind: KindStoreUnavailable, Message: "store unavailable", Err: err}
}

func forbidden(err error) error {
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return &Error{
			Kind:    KindForbidden,
			Message: fe.Error(),
			Details: map[string]any{"permission": fe.Permission},
			Err:     err,
		}
	}
	return err
}

func transitionErr(err error) error {
	var te *workflow.TransitionError
	if !errors.As(err, &te) {
		return err
	}
	details := map[string]any{"from": string(te.From), "to": string(te.To)}
	switch {
	case errors.Is(err, workflow.ErrIllegalTransition):
		return &Error{Kind: KindIllegalTransition, Message: te.Error(), Details: details, Err: err}
	default:
		return &Error{Kind: KindValidationFailed, Field: "status", Message: te.Error(), Details: details, Err: err}
	}
}
