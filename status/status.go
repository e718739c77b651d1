// Package status implements the typed error model used across tcvm: every
// operation that can fail returns a *Status (or plain nil) rather than
// panicking or using exceptions, matching spec.md §7.
package status

import (
	"fmt"
	"strings"
)

// Code classifies the kind of failure. These are exactly the eleven kinds
// named in spec.md §7, plus OK for the zero value.
type Code uint8

const (
	OK Code = iota
	InvalidArgument
	NotFound
	AlreadyExists
	FailedPrecondition
	OutOfRange
	ResourceExhausted
	Unimplemented
	Internal
	DeadlineExceeded
	Aborted
	Unavailable
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid-argument"
	case NotFound:
		return "not-found"
	case AlreadyExists:
		return "already-exists"
	case FailedPrecondition:
		return "failed-precondition"
	case OutOfRange:
		return "out-of-range"
	case ResourceExhausted:
		return "resource-exhausted"
	case Unimplemented:
		return "unimplemented"
	case Internal:
		return "internal"
	case DeadlineExceeded:
		return "deadline-exceeded"
	case Aborted:
		return "aborted"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// SourceLocation points at the IR or source construct a Status concerns.
type SourceLocation struct {
	File string
	Line int
}

func (l SourceLocation) String() string {
	if l.File == "" {
		return "-"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Annotation is one link in a Status's annotation-frame chain (§4.3.4,
// §7): each wraps the previous with additional context, oldest first.
type Annotation struct {
	Message  string
	Location SourceLocation
}

// Status is the error type returned by every fallible tcvm operation. The
// zero Status is not valid on its own; use New or one of the code
// constructors. A nil *Status means success and is always safe to check
// with s == nil or s.OK().
type Status struct {
	code        Code
	message     string
	loc         SourceLocation
	annotations []Annotation
	backtrace   string
	cause       error
}

// New constructs a Status of the given code with a formatted message.
func New(code Code, format string, args ...interface{}) *Status {
	return &Status{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to an existing error, preserving it as the Unwrap
// cause so errors.Is/errors.As continue to work against the original.
func Wrap(code Code, cause error, format string, args ...interface{}) *Status {
	s := New(code, format, args...)
	s.cause = cause
	return s
}

func (s *Status) Code() Code {
	if s == nil {
		return OK
	}
	return s.code
}

// OK reports whether s represents success (nil or an explicit OK code).
func (s *Status) OK() bool {
	return s == nil || s.code == OK
}

func (s *Status) Error() string {
	if s == nil {
		return "ok"
	}
	var b strings.Builder
	b.WriteString(s.code.String())
	if s.message != "" {
		b.WriteString(": ")
		b.WriteString(s.message)
	}
	for _, a := range s.annotations {
		b.WriteString("\n  while ")
		b.WriteString(a.Message)
		if a.Location.File != "" {
			b.WriteString(" at ")
			b.WriteString(a.Location.String())
		}
	}
	if s.backtrace != "" {
		b.WriteString("\n")
		b.WriteString(s.backtrace)
	}
	return b.String()
}

func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return s.cause
}

// WithLocation attaches the source location the failure originated at.
func (s *Status) WithLocation(loc SourceLocation) *Status {
	if s == nil {
		return nil
	}
	s.loc = loc
	return s
}

func (s *Status) Location() SourceLocation { return s.loc }

// Annotate appends one annotation frame, oldest-first, without allocating
// a new Status: a caller at N layers of the call stack can cheaply narrate
// what it was doing when a lower layer's Status propagated through it.
func Annotate(s *Status, message string, loc SourceLocation) *Status {
	if s == nil {
		return nil
	}
	s.annotations = append(s.annotations, Annotation{Message: message, Location: loc})
	return s
}

// AttachBacktrace attaches a preformatted backtrace string (internal/stack
// produces these; see spec.md §4.3.4). Attaching is a no-op if bt is empty,
// so callers that disable backtraces never pay an allocation here.
func AttachBacktrace(s *Status, bt string) *Status {
	if s == nil || bt == "" {
		return s
	}
	s.backtrace = bt
	return s
}

func (s *Status) Backtrace() string {
	if s == nil {
		return ""
	}
	return s.backtrace
}

func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.message
}

// Is implements errors.Is support keyed on code, so callers can write
// errors.Is(err, status.Sentinel(status.NotFound)) style checks against a
// sentinel built with Sentinel(code).
func (s *Status) Is(target error) bool {
	t, ok := target.(*Status)
	if !ok || t == nil {
		return false
	}
	return s.Code() == t.code && t.message == ""
}

// Sentinel returns a message-less Status usable as an errors.Is target,
// e.g. errors.Is(err, status.Sentinel(status.NotFound)).
func Sentinel(code Code) *Status {
	return &Status{code: code}
}

func IsNotFound(err error) bool           { return codeOf(err) == NotFound }
func IsInvalidArgument(err error) bool    { return codeOf(err) == InvalidArgument }
func IsAlreadyExists(err error) bool      { return codeOf(err) == AlreadyExists }
func IsFailedPrecondition(err error) bool { return codeOf(err) == FailedPrecondition }
func IsResourceExhausted(err error) bool  { return codeOf(err) == ResourceExhausted }
func IsDeadlineExceeded(err error) bool   { return codeOf(err) == DeadlineExceeded }

func codeOf(err error) Code {
	if s, ok := err.(*Status); ok {
		return s.Code()
	}
	return Internal
}
