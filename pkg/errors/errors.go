// Package errors defines the typed error taxonomy used across the matching
// core. Every failure is represented as a categorized, recoverable value
// returned to the caller; nothing in the core panics or aborts a batch run.
package errors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an error by how the caller can recover from it.
type Kind string

const (
	// KindValidation covers malformed input detected before any mutation:
	// conditions missing operands, rules with no conditions, manual matches
	// with too few transaction ids. Fix the input and retry.
	KindValidation Kind = "validation"

	// KindPrecondition covers operations invoked against state that does not
	// admit them: n-way execution with fewer than 3 candidates, review
	// transitions on terminal groups, claiming an already-owned transaction.
	KindPrecondition Kind = "precondition"

	// KindConflict covers losing a race to claim a transaction id into a
	// group. Recoverable by retrying against a fresh read.
	KindConflict Kind = "conflict"

	// KindNotFound covers references to transactions, rules or match groups
	// that do not exist. Terminal for the single operation only.
	KindNotFound Kind = "not_found"

	// KindDegenerate covers pathological computations such as a variance
	// percentage over a zero average. Surfaced as a warning-level result.
	KindDegenerate Kind = "degenerate"

	// KindConfiguration covers invalid engine or strategy configuration.
	KindConfiguration Kind = "configuration"

	// KindInternal covers unexpected failures in collaborators (storage).
	KindInternal Kind = "internal"
)

// Code identifies a specific failure within a kind.
type Code string

const (
	CodeMissingOperand      Code = "missing_operand"
	CodeTypeMismatch        Code = "type_mismatch"
	CodeEmptyRule           Code = "empty_rule"
	CodeEmptyKeyFields      Code = "empty_key_fields"
	CodeTooFewTransactions  Code = "too_few_transactions"
	CodeTransactionNotFree  Code = "transaction_not_free"
	CodeMinParticipants     Code = "min_participants"
	CodeTerminalGroup       Code = "terminal_group"
	CodeTransactionClaimed  Code = "transaction_claimed"
	CodeTransactionMissing  Code = "transaction_missing"
	CodeRuleMissing         Code = "rule_missing"
	CodeGroupMissing        Code = "group_missing"
	CodeZeroAverage         Code = "zero_average"
	CodeInvalidConfig       Code = "invalid_config"
	CodeInvalidStrategy     Code = "invalid_strategy"
	CodeStorageFailure      Code = "storage_failure"
	CodeDuplicateID         Code = "duplicate_id"
	CodeMissingReason       Code = "missing_reason"
	CodeInvalidRuleState    Code = "invalid_rule_state"
	CodeUnexpected          Code = "unexpected"
)

// ReconError is the error type returned by every operation in the core.
type ReconError struct {
	Kind       Kind              `json:"kind"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries structured detail about the failure.
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ReconError) WithContext(key string, value interface{}) *ReconError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconError) WithSuggestion(suggestion string) *ReconError {
	e.Suggestion = suggestion
	return e
}

// HTTPStatus maps the error kind to an HTTP status code for the API surface
func (e *ReconError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	case KindPrecondition:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps the error kind to a CLI exit code
func (e *ReconError) ExitCode() int {
	switch e.Kind {
	case KindValidation:
		return 2
	case KindPrecondition, KindConflict:
		return 3
	case KindConfiguration:
		return 4
	case KindNotFound:
		return 5
	default:
		return 1
	}
}

// stackTracer is the interface pkg/errors exposes for stack extraction
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a ReconError with a captured stack trace
func New(kind Kind, code Code, message string) *ReconError {
	return &ReconError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Newf creates a ReconError with a formatted message
func Newf(kind Kind, code Code, format string, args ...interface{}) *ReconError {
	return New(kind, code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with taxonomy context. Returns nil for nil.
func Wrap(err error, kind Kind, code Code, message string) *ReconError {
	if err == nil {
		return nil
	}

	return &ReconError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// Validation creates a validation error
func Validation(code Code, format string, args ...interface{}) *ReconError {
	return Newf(KindValidation, code, format, args...)
}

// Precondition creates a precondition error
func Precondition(code Code, format string, args ...interface{}) *ReconError {
	return Newf(KindPrecondition, code, format, args...)
}

// Conflict creates a conflict error for a lost claim race
func Conflict(transactionID, ownerGroupID string) *ReconError {
	return Newf(KindConflict, CodeTransactionClaimed,
		"transaction %s is already claimed by match group %s", transactionID, ownerGroupID).
		WithSuggestion("re-read the transaction pool and retry against fresh state").
		WithContext("transaction_id", transactionID).
		WithContext("owner_group_id", ownerGroupID)
}

// NotFound creates a not-found error for the named entity
func NotFound(code Code, entity, id string) *ReconError {
	return Newf(KindNotFound, code, "%s %s not found", entity, id).
		WithContext("id", id)
}

// Degenerate creates a warning-level degenerate-computation error
func Degenerate(code Code, format string, args ...interface{}) *ReconError {
	return Newf(KindDegenerate, code, format, args...)
}

// Configuration creates a configuration error
func Configuration(code Code, format string, args ...interface{}) *ReconError {
	return Newf(KindConfiguration, code, format, args...)
}

// Internal wraps an unexpected collaborator failure
func Internal(err error, message string) *ReconError {
	return Wrap(err, KindInternal, CodeStorageFailure, message)
}

// AsRecon extracts a *ReconError from err, or wraps it as internal
func AsRecon(err error) *ReconError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*ReconError); ok {
		return re
	}
	return Wrap(err, KindInternal, CodeUnexpected, err.Error())
}

// IsKind reports whether err is a ReconError of the given kind
func IsKind(err error, kind Kind) bool {
	re, ok := err.(*ReconError)
	return ok && re.Kind == kind
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsPrecondition reports whether err is a precondition error
func IsPrecondition(err error) bool { return IsKind(err, KindPrecondition) }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return IsKind(err, KindConflict) }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsDegenerate reports whether err is a degenerate-computation error
func IsDegenerate(err error) bool { return IsKind(err, KindDegenerate) }
