package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure. The transport layer maps kinds to
// response codes; callers match them with errors.Is against the Err* kind
// sentinels below.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAccessDenied
	KindConflict
	KindPreconditionFailed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation failed"
	case KindNotFound:
		return "not found"
	case KindAccessDenied:
		return "access denied"
	case KindConflict:
		return "conflict"
	case KindPreconditionFailed:
		return "precondition failed"
	default:
		return "internal inconsistency"
	}
}

type kindSentinel Kind

func (k kindSentinel) Error() string { return Kind(k).String() }

// Kind sentinels.
var (
	ErrValidation            error = kindSentinel(KindValidation)
	ErrNotFound              error = kindSentinel(KindNotFound)
	ErrAccessDenied          error = kindSentinel(KindAccessDenied)
	ErrConflict              error = kindSentinel(KindConflict)
	ErrPreconditionFailed    error = kindSentinel(KindPreconditionFailed)
	ErrInternalInconsistency error = kindSentinel(KindInternal)
)

// Error is the single error type returned by services.
type Error struct {
	Kind Kind
	Op   string // e.g. "LogTaskCompletion"
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + e.Kind.String()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && Kind(k) == e.Kind
}

func newSentinel(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Domain sentinels. Each carries its kind.
var (
	ErrUserAlreadyExists    = newSentinel(KindConflict, "user with this email already exists")
	ErrAuthenticationFailed = newSentinel(KindAccessDenied, "authentication failed: invalid email or password")
	ErrHashingFailed        = newSentinel(KindInternal, "failed to hash password")
	ErrTokenGeneration      = newSentinel(KindInternal, "failed to generate authentication token")

	ErrPatientNotFound        = newSentinel(KindNotFound, "patient not found")
	ErrDoctorNotFound         = newSentinel(KindNotFound, "doctor not found")
	ErrUserNotPatient         = newSentinel(KindValidation, "user found but is not a patient")
	ErrPatientAlreadyAssigned = newSentinel(KindConflict, "patient is already managed by another doctor")
	ErrPatientNotManaged      = newSentinel(KindAccessDenied, "patient is not managed by this doctor")

	ErrTaskNotFound          = newSentinel(KindNotFound, "task not found")
	ErrDuplicateCompletion   = newSentinel(KindConflict, "task already logged for this day")
	ErrTaskAlreadyCompleted  = newSentinel(KindConflict, "task is already completed")
	ErrFutureCompletion      = newSentinel(KindValidation, "completion date is in the future")
	ErrTaskNotReschedulable  = newSentinel(KindPreconditionFailed, "completed tasks cannot be rescheduled")
	ErrOrphanedComplianceLog = newSentinel(KindInternal, "compliance logs remain after task deletion")

	ErrTemplateNotFound       = newSentinel(KindNotFound, "template not found")
	ErrTemplateNameTaken      = newSentinel(KindConflict, "a template with this name already exists")
	ErrTemplateAccessDenied   = newSentinel(KindAccessDenied, "template belongs to another doctor")
	ErrEmptyTemplate          = newSentinel(KindValidation, "template has no tasks")
	ErrProgramAlreadyAssigned = newSentinel(KindConflict, "patient already has an active program")
	ErrReplaceNotAllowed      = newSentinel(KindConflict, "replacing an active program is disabled")
	ErrNotEnrolled            = newSentinel(KindPreconditionFailed, "patient is not enrolled")
	ErrAlreadyEnrolled        = newSentinel(KindConflict, "patient is already enrolled")
	ErrPaymentNotVerified     = newSentinel(KindValidation, "payment confirmation is not verified")

	ErrZoneNotFound         = newSentinel(KindNotFound, "zone progress not found")
	ErrZoneLocked           = newSentinel(KindPreconditionFailed, "zone is locked")
	ErrZoneAlreadyCompleted = newSentinel(KindConflict, "zone is already completed")
	ErrVideoNotFound        = newSentinel(KindNotFound, "video not found")

	ErrNoRecommendations = newSentinel(KindNotFound, "no recommendations computed yet")
	ErrNoBodyMetrics     = newSentinel(KindPreconditionFailed, "no body metrics submitted yet")
)

// wrap tags err with op. The kind comes from err when it is already a
// service error, otherwise it is kind.
func wrap(op string, kind Kind, err error) error {
	var se *Error
	if errors.As(err, &se) {
		kind = se.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// fail wraps one of the domain sentinels.
func fail(op string, sentinel *Error) error {
	return &Error{Kind: sentinel.Kind, Op: op, Err: sentinel}
}

func invalid(op string, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func internal(op string, err error) error {
	return wrap(op, KindInternal, err)
}

// KindOf returns the kind of err; errors that are not service errors are
// internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
