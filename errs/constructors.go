package errs

import "time"

// Validation constructs a terminal Validation error for a malformed field.
func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason,
		Message: field + ": " + reason, Retryable: false}
}

// Configuration constructs a terminal Configuration error for a bad config key.
func Configuration(key, message string) *Error {
	return &Error{Kind: KindConfiguration, Key: key, Message: message, Retryable: false}
}

// NodeNotFound constructs a terminal error for a missing node identifier.
func NodeNotFound(id string) *Error {
	return &Error{Kind: KindNodeNotFound, NodeID: id,
		Message: "node not found: " + id, Retryable: false}
}

// CycleDetected constructs a terminal error carrying the offending cycle path.
func CycleDetected(cycle []string) *Error {
	return &Error{Kind: KindCycleDetected, Cycle: cycle,
		Message: "cycle detected in workflow graph", Retryable: false}
}

// UnreachableNodes constructs a terminal error listing nodes unreachable from start.
func UnreachableNodes(ids []string) *Error {
	return &Error{Kind: KindUnreachableNodes, UnreachableIDs: ids,
		Message: "unreachable nodes in workflow graph", Retryable: false}
}

// InvalidRouter constructs a terminal error for a router node violating its contract.
func InvalidRouter(node string, reason string) *Error {
	return &Error{Kind: KindInvalidRouter, NodeID: node,
		Message: "invalid router: " + reason, Retryable: false}
}

// Runtime constructs a terminal system error wrapping an underlying cause.
func Runtime(message string, cause error) *Error {
	return &Error{Kind: KindRuntime, Message: message, Cause: cause, Retryable: false}
}

// Timeout constructs a retryable error for an operation that exceeded its deadline.
func Timeout(operation string, after time.Duration) *Error {
	return &Error{Kind: KindTimeout, Operation: operation, After: after,
		Message: "timeout after " + after.String(), Retryable: true}
}

// Cancelled constructs an error for a cooperatively cancelled operation.
func Cancelled() *Error {
	return &Error{Kind: KindCancelled, Message: "cancelled", Retryable: false}
}

// MCP constructs an error for an MCP transport/tool call failure.
func MCP(server, operation, message string, cause error) *Error {
	return &Error{Kind: KindMCP, Server: server, Operation: operation,
		Message: message, Cause: cause, Retryable: true}
}

// Transport classification kinds. Only NetworkReset and Unavailable are
// transient; any other kind (a dial refused by a misconfigured address,
// a handshake rejected for bad credentials, ...) is terminal.
const (
	TransportNetworkReset = "network_reset"
	TransportUnavailable  = "unavailable"
)

// Transport constructs a transport-layer error for kind. Only
// TransportNetworkReset and TransportUnavailable are retryable, matching
// the Retryable(transient) classification; any other kind is terminal.
func Transport(kind, message string) *Error {
	retryable := kind == TransportNetworkReset || kind == TransportUnavailable
	return &Error{Kind: KindTransport, TransportKind: kind, Message: message, Retryable: retryable}
}

// Serialization constructs a terminal error for malformed or mismatched payloads.
func Serialization(message string) *Error {
	return &Error{Kind: KindSerialization, Message: message, Retryable: false}
}

// RateLimited constructs a retryable error with a known retry-after hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limited",
		Retryable: true, RetryAfter: &retryAfter}
}

// BudgetExceeded constructs a terminal error for a budget scope that denied a request.
func BudgetExceeded(scope string) *Error {
	return &Error{Kind: KindBudgetExceeded, Scope: scope,
		Message: "budget exceeded for scope " + scope, Retryable: false}
}

// ConcurrencyConflict constructs a terminal optimistic-concurrency conflict error.
func ConcurrencyConflict(aggregate string, expected, actual int64) *Error {
	return &Error{Kind: KindConcurrencyConflict, Aggregate: aggregate,
		ExpectedVersion: expected, ActualVersion: actual,
		Message: "concurrency conflict on aggregate " + aggregate, Retryable: false}
}

// NotFound constructs a terminal not-found error for arbitrary lookups.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, What: what, Message: "not found: " + what, Retryable: false}
}

// External constructs an error representing an external service failure. Status codes
// 502/503/504 are classified retryable; others are treated as terminal.
func External(service string, status int, message string) *Error {
	retryable := status == 502 || status == 503 || status == 504
	return &Error{Kind: KindExternal, Service: service, Status: status,
		Message: message, Retryable: retryable}
}
