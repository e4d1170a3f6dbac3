// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors, and the HTTP layer middleware
// automatically maps them to appropriate HTTP status codes and machine
// readable codes.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data.
	KindValidation
	// KindConflict indicates a conflict with existing state (e.g., duplicate).
	KindConflict
	// KindForbidden indicates the action is not allowed for the user.
	KindForbidden
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindBadRequest indicates a malformed or invalid request.
	KindBadRequest
	// KindInternal indicates an unexpected internal error.
	KindInternal
	// KindGone indicates a resource that existed but is no longer available.
	KindGone
	// KindUnavailable indicates a remote dependency could not be reached.
	KindUnavailable
)

// Error is a domain error with a typed Kind for HTTP mapping and a Code for
// the spec's machine-readable error taxonomy (§7).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInternal:
		return http.StatusInternalServerError
	case KindGone:
		return http.StatusGone
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// New creates a new domain error with the given kind, code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithOp returns the same error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails returns the same error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error kinds, uncoded. Prefer the
// Code* constructors below when the spec names a specific error code.
func NotFound(message string) *Error     { return New(KindNotFound, "", message) }
func Validation(message string) *Error   { return New(KindValidation, "", message) }
func Conflict(message string) *Error     { return New(KindConflict, "", message) }
func Forbidden(message string) *Error    { return New(KindForbidden, "", message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, "", message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, "", message) }
func Internal(message string) *Error     { return New(KindInternal, "", message) }
func Gone(message string) *Error         { return New(KindGone, "", message) }
func Unavailable(message string) *Error  { return New(KindUnavailable, "", message) }

// GetKind extracts the error kind from an error.
// Returns KindUnknown if the error is not an *Error.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindUnknown
}

// GetCode extracts the error code from an error, empty string if none.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Spec §7 error taxonomy. These constants are passed as the `code` argument
// to the Code* constructors so handlers and use cases agree on the wire
// format without re-typing the string at every call site.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidInputSpec  = "INVALID_INPUT_SPEC"
	CodeTaskNotFound      = "TASK_NOT_FOUND"
	CodeProjectNotFound   = "PROJECT_NOT_FOUND"
	CodeProjectNotActive  = "PROJECT_NOT_ACTIVE"
	CodeArtifactNotFound  = "ARTIFACT_NOT_FOUND"
	CodeAlreadyApproved   = "ALREADY_APPROVED"
	CodeCannotApproveRej  = "CANNOT_APPROVE_REJECTED"
	CodeCannotApproveSup  = "CANNOT_APPROVE_SUPERSEDED"
	CodeAlreadyRejected   = "ALREADY_REJECTED"
	CodeCannotRejectAppr  = "CANNOT_REJECT_APPROVED"
	CodeAlreadyArchived   = "ALREADY_ARCHIVED"
	CodeCannotArchiveLast = "CANNOT_ARCHIVE_LATEST"
	CodeInvalidArtifactTy = "INVALID_ARTIFACT_TYPE"
	CodeCannotCancelDone  = "CANNOT_CANCEL_COMPLETED"
	CodeNotPaused         = "NOT_PAUSED"
	CodeCannotResume      = "CANNOT_RESUME"
	CodeInvalidStatus     = "INVALID_STATUS"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodePipelineNotFound  = "PIPELINE_NOT_FOUND"
	CodeRunNotFound       = "PIPELINE_RUN_NOT_FOUND"
	CodeInvalidRun        = "INVALID_PIPELINE_RUN"
	CodeNoRun             = "NO_PIPELINE_RUN"
	CodeInsufficientPerm  = "INSUFFICIENT_PERMISSIONS"
	CodeBillingUnavail    = "BILLING_SERVICE_UNAVAILABLE"
	CodeBalanceCheckFail  = "BALANCE_CHECK_FAILED"
	CodeInsufficientCredi = "INSUFFICIENT_CREDIT"
	CodeMaxRetriesExceed  = "MAX_RETRIES_EXCEEDED"
	CodeRetryJobCreateErr = "RETRY_JOB_CREATION_FAILED"
	CodeStepRunNotFound   = "STEP_RUN_NOT_FOUND"
	CodeNoAgentRunsFound  = "NO_AGENT_RUNS_FOUND"
	CodeCompensationError = "COMPENSATION_ERROR"
)

// CodeNotFoundErr builds a KindNotFound error carrying a spec error code.
func CodeNotFoundErr(code, message string) *Error { return New(KindNotFound, code, message) }

// CodeBadRequestErr builds a KindBadRequest error carrying a spec error code.
func CodeBadRequestErr(code, message string) *Error { return New(KindBadRequest, code, message) }

// CodeConflictErr builds a KindConflict error carrying a spec error code.
func CodeConflictErr(code, message string) *Error { return New(KindConflict, code, message) }

// CodeForbiddenErr builds a KindForbidden error carrying a spec error code.
func CodeForbiddenErr(code, message string) *Error { return New(KindForbidden, code, message) }

// CodeUnavailableErr builds a KindUnavailable error carrying a spec error code.
func CodeUnavailableErr(code, message string) *Error { return New(KindUnavailable, code, message) }

// CodeInternalErr builds a KindInternal error carrying a spec error code.
func CodeInternalErr(code, message string) *Error { return New(KindInternal, code, message) }
