// Package fault defines the structured error taxonomy shared by every
// doctrans package. Errors carry a stable code so callers can branch on the
// condition without matching message text.
package fault

import (
	"errors"
	"fmt"
)

// Code identifies an error category.
type Code string

const (
	CodeValidation       Code = "VALIDATION"
	CodePrecondition     Code = "PRECONDITION_NOT_MET"
	CodeCollaborator     Code = "COLLABORATOR_FAILURE"
	CodePathTraversal    Code = "PATH_TRAVERSAL_REJECTED"
	CodeCorruptArtifact  Code = "CORRUPT_ARTIFACT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeFrameUnavailable Code = "FRAME_UNAVAILABLE"
	CodeEngineMissing    Code = "ENGINE_UNAVAILABLE"
)

// Error is a coded error with optional structured details and a wrapped cause.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports code equality so errors.Is matches against sentinel values
// constructed with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the code from err, or "" when err is not a coded error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }

// Validation rejects bad input before any state mutation.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Precondition reports a stage requested out of order. The missing stage is
// recorded in Details so the caller can correct the request.
func Precondition(missing, message string) *Error {
	return &Error{
		Code:    CodePrecondition,
		Message: message,
		Details: map[string]any{"missing_stage": missing},
	}
}

// Collaborator wraps a failure of an external collaborator (rasterizer,
// vision analyzer, OCR engine, document renderer).
func Collaborator(stage string, err error) *Error {
	return &Error{
		Code:    CodeCollaborator,
		Message: fmt.Sprintf("%s failed", stage),
		Details: map[string]any{"stage": stage},
		Err:     err,
	}
}

// Traversal reports a rejected asset resolution. The message deliberately
// omits the resolved path (the requested name stays in Details for logging
// at the security audit level only).
func Traversal(name string) *Error {
	return &Error{
		Code:    CodePathTraversal,
		Message: "asset path escapes job root",
		Details: map[string]any{"requested": name},
	}
}

// Corrupt reports an unreadable persisted artifact.
func Corrupt(artifact string, err error) *Error {
	return &Error{
		Code:    CodeCorruptArtifact,
		Message: fmt.Sprintf("artifact %s is unreadable", artifact),
		Details: map[string]any{"artifact": artifact},
		Err:     err,
	}
}

// NotFound reports a missing job or required artifact.
func NotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", what)}
}

// FrameUnavailable reports a coordinate conversion attempted against a frame
// or container whose size is zero or unknown.
func FrameUnavailable(detail string) *Error {
	return &Error{Code: CodeFrameUnavailable, Message: detail}
}

// EngineUnavailable reports an absent optional engine (e.g. no OCR binary
// installed). This is a normal, reportable condition rather than a crash.
func EngineUnavailable(engine string) *Error {
	return &Error{
		Code:    CodeEngineMissing,
		Message: fmt.Sprintf("engine %s is not available", engine),
		Details: map[string]any{"engine": engine},
	}
}
