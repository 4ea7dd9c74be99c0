package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a rejection for callers.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindRemoteUnavailable Kind = "remote_unavailable"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInternal          Kind = "internal"
)

// Rejection is a typed failure returned to callers. Reason is the
// user-visible string.
type Rejection struct {
	Kind   Kind
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Kind, r.Reason, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Retryable reports whether the same call may succeed later.
func (r *Rejection) Retryable() bool {
	return r.Kind == KindRemoteUnavailable
}

func Validation(reason string) error {
	return &Rejection{Kind: KindValidation, Reason: reason}
}

func Validationf(format string, args ...any) error {
	return &Rejection{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func NotFound(reason string) error {
	return &Rejection{Kind: KindNotFound, Reason: reason}
}

func Conflict(reason string) error {
	return &Rejection{Kind: KindConflict, Reason: reason}
}

func Conflictf(format string, args ...any) error {
	return &Rejection{Kind: KindConflict, Reason: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a failed outbound call.
func Unavailable(op string, cause error) error {
	return &Rejection{Kind: KindRemoteUnavailable, Reason: op + " unavailable", Err: cause}
}

// KindOf returns the rejection kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind
	}
	return KindInternal
}

// ReasonOf returns the user-visible reason of err.
func ReasonOf(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return "internal error"
}

var (
	ErrInsufficientBalance = &Rejection{Kind: KindInsufficientFunds, Reason: "insufficient balance"}
	ErrInvalidAmount       = &Rejection{Kind: KindValidation, Reason: "amount must be greater than zero"}

	ErrUserNotFound        = &Rejection{Kind: KindNotFound, Reason: "user not found"}
	ErrTaskNotFound        = &Rejection{Kind: KindNotFound, Reason: "task not found"}
	ErrOfferNotFound       = &Rejection{Kind: KindNotFound, Reason: "offer not found"}
	ErrApplicationNotFound = &Rejection{Kind: KindNotFound, Reason: "application not found"}
	ErrPaymentNotFound     = &Rejection{Kind: KindNotFound, Reason: "payment not found"}

	ErrAlreadyAccepted   = &Rejection{Kind: KindConflict, Reason: "already accepted"}
	ErrRunnerBusy        = &Rejection{Kind: KindConflict, Reason: "runner already holds an accepted offer"}
	ErrAlreadyOffered    = &Rejection{Kind: KindConflict, Reason: "runner already offered on this task"}
	ErrAlreadyApplied    = &Rejection{Kind: KindConflict, Reason: "already applied to this task"}
	ErrAlreadyAssigned   = &Rejection{Kind: KindConflict, Reason: "runner already assigned"}
	ErrFullyStaffed      = &Rejection{Kind: KindConflict, Reason: "fully staffed"}
	ErrNotAssigned       = &Rejection{Kind: KindConflict, Reason: "runner is not assigned to this task"}
	ErrTaskNotOpen       = &Rejection{Kind: KindConflict, Reason: "task is not open"}
	ErrTaskTerminal      = &Rejection{Kind: KindConflict, Reason: "task is already finished"}
	ErrIllegalTransition = &Rejection{Kind: KindConflict, Reason: "illegal status transition"}
	ErrWrongKind         = &Rejection{Kind: KindConflict, Reason: "operation not supported for this task kind"}
	ErrNotPoster         = &Rejection{Kind: KindConflict, Reason: "only the task poster may do this"}
	ErrNotAssignee       = &Rejection{Kind: KindConflict, Reason: "only the assigned runner may do this"}
	ErrPosterIsRunner    = &Rejection{Kind: KindConflict, Reason: "task poster cannot be the runner"}
	ErrNotPending        = &Rejection{Kind: KindConflict, Reason: "only pending entries can be changed"}
	ErrTaskAssigned      = &Rejection{Kind: KindConflict, Reason: "task already has assigned runners"}
	ErrPaymentSettled    = &Rejection{Kind: KindConflict, Reason: "payment already settled"}
	ErrDuplicateHold     = &Rejection{Kind: KindConflict, Reason: "an open payment already exists for this runner"}
	ErrAmbiguousPayment  = &Rejection{Kind: KindConflict, Reason: "task has several open payments"}
	ErrParticipants      = &Rejection{Kind: KindConflict, Reason: "participants or task status do not allow payment"}
	ErrSamePayer         = &Rejection{Kind: KindValidation, Reason: "payer and recipient must differ"}
)
