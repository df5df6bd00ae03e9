package core

import "errors"

// Code is a stable, machine-readable error category.
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeInvalidToken        Code = "INVALID_TOKEN"
	CodeAlreadyAuthorized   Code = "ALREADY_AUTHORIZED"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeAnalysisParse       Code = "ANALYSIS_PARSE_ERROR"
	CodeLinkBuild           Code = "LINK_BUILD_ERROR"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeInternal            Code = "INTERNAL"
)

// Error is a coded domain error.
type Error struct {
	Code    Code   // Machine-readable category
	Message string // Internal message for logs
	Cause   error  // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a coded error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error around cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is. Any *Error carrying the same code matches.
var (
	ErrUnauthorized        = NewError(CodeUnauthorized, "identity is not authorized")
	ErrPermissionDenied    = NewError(CodePermissionDenied, "permission denied")
	ErrInvalidToken        = NewError(CodeInvalidToken, "invalid or expired invitation token")
	ErrAlreadyAuthorized   = NewError(CodeAlreadyAuthorized, "identity is already authorized")
	ErrUpstreamUnavailable = NewError(CodeUpstreamUnavailable, "upstream service unavailable")
	ErrAnalysisParse       = NewError(CodeAnalysisParse, "analysis reply is empty")
	ErrLinkBuild           = NewError(CodeLinkBuild, "calendar link could not be built")
	ErrInvalidInput        = NewError(CodeInvalidInput, "invalid input")
	ErrInternal            = NewError(CodeInternal, "internal error")
)

// Storage errors
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateToken = errors.New("duplicate invitation token")
)

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
