package errs

import "errors"

// Terminal reports whether err should never be retried automatically, i.e. it
// is either a caller-fault error (bad input, bad configuration, a structural
// graph problem) or a system error the engine has no mechanism to recover
// from by itself. The scheduler (C5) consults this before consuming a retry
// attempt; mirrors the teacher's RetryPolicy.Retryable predicate but applied
// to the tagged-union Kind instead of an arbitrary error value.
func Terminal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	return !e.Retryable
}

// Retryable reports whether err is classified as retryable. Equivalent to
// !Terminal(err) but reads better at call sites that branch on the positive
// case (scheduler retry loops, MCP call sites).
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Retryable
}

// Of extracts the *Error from err, if any, and reports whether it was found.
func Of(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindUnknown if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// CallerFault reports whether err is a Validation, Configuration,
// NodeNotFound, CycleDetected, UnreachableNodes, InvalidRouter, NotFound,
// BudgetExceeded, or ConcurrencyConflict error — the terminal kinds that
// indicate a problem with the workflow definition or request rather than a
// transient runtime condition.
func CallerFault(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConfiguration, KindNodeNotFound, KindCycleDetected,
		KindUnreachableNodes, KindInvalidRouter, KindNotFound, KindBudgetExceeded,
		KindConcurrencyConflict:
		return true
	default:
		return false
	}
}
