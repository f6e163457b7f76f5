// Package errs provides the core engine's single tagged-union error type.
//
// Every failure surfaced by the engine — from schema validation through
// MCP transport failures to event-store conflicts — is an *Error value.
// Large payloads (causes, cycle paths, node id lists) live in the Cause,
// Cycle and UnreachableIDs fields rather than being duplicated as dozens of distinct
// Go error types, keeping the success path allocation-free.
package errs

import (
	"fmt"
	"time"
)

// Kind discriminates the error variants of section 4.1.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConfiguration
	KindNodeNotFound
	KindCycleDetected
	KindUnreachableNodes
	KindInvalidRouter
	KindRuntime
	KindTimeout
	KindCancelled
	KindMCP
	KindTransport
	KindSerialization
	KindRateLimited
	KindBudgetExceeded
	KindConcurrencyConflict
	KindNotFound
	KindExternal
)

// String returns a stable, human-readable name for the Kind. Not used for
// programmatic matching — compare the Kind field (or use KindOf / Is) for that.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindConfiguration:
		return "Configuration"
	case KindNodeNotFound:
		return "NodeNotFound"
	case KindCycleDetected:
		return "CycleDetected"
	case KindUnreachableNodes:
		return "UnreachableNodes"
	case KindInvalidRouter:
		return "InvalidRouter"
	case KindRuntime:
		return "Runtime"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindMCP:
		return "MCP"
	case KindTransport:
		return "Transport"
	case KindSerialization:
		return "Serialization"
	case KindRateLimited:
		return "RateLimited"
	case KindBudgetExceeded:
		return "BudgetExceeded"
	case KindConcurrencyConflict:
		return "ConcurrencyConflict"
	case KindNotFound:
		return "NotFound"
	case KindExternal:
		return "External"
	default:
		return "Unknown"
	}
}

// Error is the single tagged-union error type for the engine.
//
// Fields beyond Kind/Message are variant-specific and populated only when
// relevant; Error() formats a stable, readable message but is not intended
// to be machine-parsed — match on Kind (or the Is* helpers) instead.
type Error struct {
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Field/Reason back Validation errors.
	Field  string
	Reason string

	// Key backs Configuration errors.
	Key string

	// NodeID identifies the node this error concerns, when applicable
	// (NodeNotFound, InvalidRouter, node-level Runtime/Timeout errors).
	NodeID string

	// Cycle backs CycleDetected, the offending path including the repeated node.
	Cycle []string

	// UnreachableIDs backs UnreachableNodes.
	UnreachableIDs []string

	// Operation/Server/What back MCP, Timeout, and NotFound errors.
	Operation string
	Server    string
	What      string

	// TransportKind backs Transport errors ("network_reset", "unavailable", ...).
	TransportKind string

	// After backs Timeout errors: how long the operation ran before timing out.
	After time.Duration

	// Scope backs BudgetExceeded ("Global", "Provider", "User", "Project").
	Scope string

	// Aggregate/Expected/Actual back ConcurrencyConflict.
	Aggregate       string
	ExpectedVersion int64
	ActualVersion   int64

	// Service/Status back External.
	Service string
	Status  int

	// Retryable classifies this error for retry logic.
	Retryable bool

	// RetryAfter is an optional backoff hint for retryable errors.
	RetryAfter *time.Duration

	// Cause is the wrapped underlying error, if any.
	Cause error
}

// Error implements the error interface with a stable, human-readable message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.NodeID != "" {
		msg = fmt.Sprintf("node %s: %s", e.NodeID, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap supports errors.Is/As against the wrapped Cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error is classified retryable.
func (e *Error) IsRetryable() bool {
	return e != nil && e.Retryable
}

// Code returns a short machine-readable code, matching the teacher's
// EngineError.Code convention, suitable for log/metric labels.
func (e *Error) Code() string {
	return e.Kind.String()
}
