// Package errors provides coded errors for botscope.
// Every failure that crosses a package boundary carries a Code so callers can
// branch on the kind of failure instead of matching message text.
package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"sort"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	// Filesystem errors (1xx)
	CodeFileNotFound   Code = "E101"
	CodeFilePermission Code = "E102"
	CodeMissingFile    Code = "E104"
	CodeStepNotFound   Code = "E107"

	// Environment and transport errors
	CodeFetchFailed   Code = "E110"
	CodeMountFailed   Code = "E111"
	CodeExtractFailed Code = "E112"

	// Processing errors (2xx)
	CodeParseFailed Code = "E201"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"

	// Configuration errors (6xx)
	CodeInvalidConfig Code = "E601"

	CodeUnknown Code = "E999"
)

// Error is the base error type for all botscope errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code. It returns nil when err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Sentinels ---

// ErrStepNotFound matches any error reporting a preprocessing step that was never stored.
var ErrStepNotFound = &Error{Code: CodeStepNotFound, Message: "step not found"}

// --- Convenience constructors ---

// FileSystem classifies an os error as not-found, permission or generic write failure.
func FileSystem(err error, op, path string) *Error {
	if err == nil {
		return nil
	}
	code := CodeWriteFailed
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = CodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		code = CodeFilePermission
	}
	return (&Error{
		Code:       code,
		Message:    op + " failed",
		Cause:      err,
		StackTrace: captureStack(2),
	}).WithContext("path", path)
}

// MissingFile reports a manifest entry that is absent after provisioning.
func MissingFile(name, root string) *Error {
	return New(CodeMissingFile, "dataset file missing").
		WithContext("file", name).
		WithContext("root", root)
}

// StepNotFound reports a cache step directory that does not exist.
func StepNotFound(step string) *Error {
	return New(CodeStepNotFound, "step not found").WithContext("step", step)
}

// FetchFailed wraps a transport failure for identifier id.
func FetchFailed(err error, id string) *Error {
	return Wrap(err, CodeFetchFailed, "fetch failed").WithContext("id", id)
}

// MountFailed wraps a shared drive mount failure.
func MountFailed(err error, mountPoint string) *Error {
	return Wrap(err, CodeMountFailed, "mount failed").WithContext("mount_point", mountPoint)
}

// ExtractFailed wraps an archive extraction failure.
func ExtractFailed(err error, archive string) *Error {
	return Wrap(err, CodeExtractFailed, "archive extraction failed").WithContext("archive", archive)
}

// ParseError creates a parsing error with location.
func ParseError(format, path string, err error) *Error {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("path", path)
}

// InvalidConfig wraps a configuration validation failure.
func InvalidConfig(err error) *Error {
	return Wrap(err, CodeInvalidConfig, "invalid configuration")
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var bsErr *Error
	if errors.As(err, &bsErr) {
		return bsErr.Code == code
	}
	return false
}
