// Package mierr defines the error kinds surfaced by fluoresce's session
// driver, high-level API, and traversal engine: ProtocolMismatch,
// ParseError, IOFailure, and MisuseError are surfaced to callers;
// SanitizeFail is swallowed internally by the traversal engine.
package mierr

import (
	"fmt"

	"github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Code identifies one of the error kinds a caller may need to branch on.
type Code int

const (
	// ProtocolMismatch: a result record's class was not in the expected set
	// for the wrapper that issued the command.
	ProtocolMismatch Code = iota
	// ParseError: an MI body failed to parse.
	ParseError
	// IOFailure: subprocess exit, broken pipe, or pty read error.
	IOFailure
	// MisuseError: overlapping run_command calls, use after close, or
	// cancellation of an in-flight run_command.
	MisuseError
)

func (c Code) String() string {
	switch c {
	case ProtocolMismatch:
		return "ProtocolMismatch"
	case ParseError:
		return "ParseError"
	case IOFailure:
		return "IOFailure"
	case MisuseError:
		return "MisuseError"
	default:
		return "Unknown"
	}
}

// Error is fluoresce's typed error: a code the caller can branch on, a
// human message, and (for ParseError) the raw MI body that failed to
// parse, captured with an xerrors.Frame so a fatal error can still print a
// stack trace at the top level.
type Error struct {
	Code    Code
	Message string
	Raw     string // the offending MI body, set only for ParseError
	frame   xerrors.Frame
}

// New builds an Error of the given kind, capturing the caller's frame.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(1),
	}
}

// NewParseError builds a ParseError carrying the body that failed to parse.
func NewParseError(raw string, cause error) *Error {
	return &Error{
		Code:    ParseError,
		Message: fmt.Sprintf("could not parse MI body: %v", cause),
		Raw:     raw,
		frame:   xerrors.Caller(1),
	}
}

// FormatError implements xerrors.Formatter.
func (e *Error) FormatError(p xerrors.Printer) error {
	p.Printf("%s: %s", e.Code, e.Message)
	e.frame.Format(p)
	return nil
}

// Format implements fmt.Formatter.
func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same Code, so errors.Is
// matches any two Errors of one kind regardless of message. A bare Code is
// not an error value; use HasCode to test against one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HasCode reports whether err is (or wraps) an *Error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// WrapTopLevel wraps err for the sake of showing a stack trace at the top
// level. go-errors does not return nil for a nil input, so we guard it
// here.
func WrapTopLevel(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 0)
}
