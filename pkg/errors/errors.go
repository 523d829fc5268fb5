// Package errors provides the structured error type shared by every layer of
// FCE-Intelligence. Infrastructure adapters wrap driver errors into AppError,
// the application layer adds domain codes, and the HTTP/gRPC surfaces map the
// code to a status without inspecting messages.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call stack starting above the caller of
// New/Wrap.
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the single structured error type used across the service. It
// supports errors.Is / errors.As through Unwrap.
//
//	return errors.New(errors.ErrCodeReportJobNotFound, "report job not found").
//	           WithDetail("id=" + id.String())
type AppError struct {
	// Code identifies the failure category and drives HTTP/gRPC status mapping.
	Code ErrorCode

	// Message is safe to return to API callers.
	Message string

	// Detail carries debugging context such as ids or query parameters.
	Detail string

	// Cause is the lower-level error, if any.
	Cause error

	// Stack is captured at construction and never included in Error().
	Stack string
}

// Error formats as "[<code>] <message>: <detail>"; the detail segment is
// omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by code so sentinel values declared with New
// can be compared with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// WithDetail returns a copy with Detail set. Safe on a nil receiver.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a copy with Cause set.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

// New constructs an AppError with a captured stack.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError around err, returning nil when err is nil.
// Passing CodeUnknown keeps the code of an wrapped AppError.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		} else {
			code = CodeInternal
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	ae := Wrap(err, code, fmt.Sprintf(format, args...))
	ae.Stack = captureStack(1)
	return ae
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Stack: captureStack(1)}
}

func InvalidParam(message string) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: message, Stack: captureStack(1)}
}

func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Stack: captureStack(1)}
}

func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Stack: captureStack(1)}
}

// Internal is for unexpected server-side failures; log the cause before
// returning it.
func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Stack: captureStack(1)}
}

// ErrInvalidConfig is returned by constructors that receive unusable settings.
var ErrInvalidConfig = &AppError{Code: ErrCodeInvalidConfig, Message: "invalid configuration"}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any AppError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func anyCode(err error, codes ...ErrorCode) bool {
	for _, c := range codes {
		if IsCode(err, c) {
			return true
		}
	}
	return false
}

// IsNotFound covers the generic and every module-specific not-found code.
func IsNotFound(err error) bool {
	return anyCode(err, CodeNotFound, ErrCodeCitationNotFound, ErrCodeReportJobNotFound)
}

// IsValidation covers malformed input of any module.
func IsValidation(err error) bool {
	return anyCode(err, ErrCodeValidation, CodeInvalidParam, ErrCodeSerialization,
		ErrCodeEmptyBatch, ErrCodeUnknownSection, ErrCodeEvaluationNoTest,
		ErrCodeCitationInvalid, ErrCodeReportFormatInvalid)
}

func IsConflict(err error) bool {
	return anyCode(err, CodeConflict, ErrCodeReportNotReady)
}

// GetCode returns the code of the first AppError in err's chain, CodeOK for
// nil and CodeInternal when there is no AppError at all.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus returns the HTTP status for err's code.
func HTTPStatus(err error) int {
	return HTTPStatusForCode(GetCode(err))
}

// Is, As and Unwrap re-export the standard library helpers so callers need a
// single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }
