package caselaw

import (
	"errors"
	"fmt"
)

// Code is the stable error code surfaced at the service boundary.
type Code string

// Error codes. Every error crossing the API boundary carries exactly one.
const (
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodePolicyBlocked     Code = "POLICY_BLOCKED"
	CodeValidation        Code = "VALIDATION_ERROR"
)

// Machine-readable reasons attached to errors. Reasons distinguish failure
// modes within a code (e.g. which quota ceiling rejected a fallback call,
// or which export validation step failed).
const (
	ReasonUnknownSource        = "unknown_source"
	ReasonSourceIngestDisabled = "source_ingest_disabled"
	ReasonSourceCiteDisabled   = "source_cite_disabled"
	ReasonSourceExportDisabled = "source_export_disabled"
	ReasonDailyLimit           = "daily_limit"
	ReasonPerSecondLimit       = "per_second_limit"
	ReasonConcurrentLimit      = "concurrent_limit"
	ReasonApprovalRequired     = "approval_required"
	ReasonHostMismatch         = "host_mismatch"
	ReasonWrongPayloadType     = "wrong_payload_type"
	ReasonPayloadTooLarge      = "payload_too_large"
	ReasonUnknownCase          = "unknown_case"
	ReasonQueryTooVague        = "query_too_vague"
)

// Sentinels for errors.Is matching by code.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrPolicyBlocked     = errors.New("policy blocked")
	ErrValidation        = errors.New("validation failed")
)

// Error is a typed error carrying the boundary code, a machine-readable
// reason, and an optional wrapped cause. TraceID is filled in by the HTTP
// layer for cross-system correlation.
type Error struct {
	Code    Code
	Reason  string
	TraceID string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return string(e.Code)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the per-code sentinel so callers can branch on error class
// without unpacking the struct.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSourceUnavailable:
		return e.Code == CodeSourceUnavailable
	case ErrRateLimited:
		return e.Code == CodeRateLimited
	case ErrPolicyBlocked:
		return e.Code == CodePolicyBlocked
	case ErrValidation:
		return e.Code == CodeValidation
	}
	return false
}

// NewSourceUnavailable builds a SOURCE_UNAVAILABLE error for a source.
func NewSourceUnavailable(sourceID string, cause error) *Error {
	return &Error{Code: CodeSourceUnavailable, Reason: sourceID, cause: cause}
}

// NewRateLimited builds a RATE_LIMITED error with the quota reason that
// rejected the call.
func NewRateLimited(reason string) *Error {
	return &Error{Code: CodeRateLimited, Reason: reason}
}

// NewPolicyBlocked builds a POLICY_BLOCKED error with the policy reason.
func NewPolicyBlocked(reason string) *Error {
	return &Error{Code: CodePolicyBlocked, Reason: reason}
}

// NewValidation builds a VALIDATION_ERROR with the validation reason.
func NewValidation(reason string, cause error) *Error {
	return &Error{Code: CodeValidation, Reason: reason, cause: cause}
}

// CodeOf extracts the boundary code from err, or "" when err is not a
// caselaw error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ReasonOf extracts the machine-readable reason from err, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
