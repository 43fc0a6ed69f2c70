// Package apierr provides the stable error taxonomy used across Watchy's
// core: a structured error carrying a machine-readable code, an HTTP
// status, and an optional wrapped cause, so handlers never leak raw RPC
// stacks or signer internals to callers.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeInvalidRequest     Code = "invalid_request"
	CodeInvalidAddress     Code = "invalid_address"
	CodeInvalidAgentID     Code = "invalid_agent_id"
	CodeNotFound           Code = "not_found"
	CodeNotCompleted       Code = "not_completed"
	CodeRateLimited        Code = "rate_limited"
	CodeAgentNotFound      Code = "AGENT_NOT_FOUND"
	CodeAuditTimeout       Code = "AUDIT_TIMEOUT"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeMetadataUnreach    Code = "METADATA_UNREACHABLE"
	CodeInvalidMetadataRaw Code = "INVALID_METADATA_JSON"
)

// Error is a structured error with a code, message, HTTP status, and
// optional structured details, matching the shape the rest of the
// codebase expects from any core operation.
type Error struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a structured detail field and returns the receiver
// for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an Error with no wrapped cause.
func New(code Code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates an Error around an existing error, preserving it for
// Unwrap/errors.As but never rendering it into Error().
func Wrap(code Code, message string, httpStatus int, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Input errors (4xx).

func InvalidRequest(reason string) *Error {
	return New(CodeInvalidRequest, "invalid request", http.StatusBadRequest).WithDetails("reason", reason)
}

func InvalidAddress(field string) *Error {
	return New(CodeInvalidAddress, "invalid address", http.StatusBadRequest).WithDetails("field", field)
}

func InvalidAgentID(value string) *Error {
	return New(CodeInvalidAgentID, "invalid agent id", http.StatusBadRequest).WithDetails("value", value)
}

func NotFound(resource, id string) *Error {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

// NotCompleted reports that an audit exists but hasn't finished yet,
// per spec.md §6: GET .../report is 409 while the audit is in progress.
func NotCompleted(auditID string) *Error {
	return New(CodeNotCompleted, "audit is not yet completed", http.StatusConflict).
		WithDetails("audit_id", auditID)
}

func RateLimited(retryAfterSeconds int) *Error {
	return New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("retry_after", retryAfterSeconds)
}

// Fatal audit errors.

func AgentNotFound(agentID string, chainID uint64, err error) *Error {
	return Wrap(CodeAgentNotFound, "agent not registered on chain", http.StatusNotFound, err).
		WithDetails("agent_id", agentID).WithDetails("chain_id", chainID)
}

func AuditTimeout() *Error {
	return New(CodeAuditTimeout, "audit exceeded its wall-clock deadline", http.StatusGatewayTimeout)
}

func Internal(message string, err error) *Error {
	return Wrap(CodeInternalError, message, http.StatusInternalServerError, err)
}

// Helpers.

// As extracts an *Error from an error chain, if present.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatus returns the HTTP status for an error, defaulting to 500 for
// errors that aren't an *Error.
func HTTPStatus(err error) int {
	if e := As(err); e != nil {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
