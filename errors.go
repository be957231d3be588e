package scriptbox

import (
	"fmt"
	"runtime"
)

// Kind classifies what part of the sandbox produced an Error.
type Kind int

const (
	// KindUnknown is the zero value; never produced by this package.
	KindUnknown Kind = iota
	// KindQuotaExceeded means a memory, instruction or output ceiling was hit.
	KindQuotaExceeded
	// KindGatingViolation means a guest script touched a denylisted symbol
	// or tried to require a module it isn't permitted to load.
	KindGatingViolation
	// KindInvalidConfiguration means the sandbox was constructed or
	// initialized with a configuration that cannot be satisfied.
	KindInvalidConfiguration
	// KindGuestError means the guest Lua script itself raised or
	// propagated an error unrelated to quota or gating.
	KindGuestError
	// KindSerializerError means output() failed to encode one of its
	// arguments (for example, a cyclic table).
	KindSerializerError
)

func (k Kind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindGatingViolation:
		return "gating_violation"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindGuestError:
		return "guest_error"
	case KindSerializerError:
		return "serializer_error"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every Sandbox operation. Message is
// always populated and Stack is captured at construction time; Err is
// present when the error wraps an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an Error of kind k with a formatted message, capturing a
// stack trace at the call site.
func newError(k Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    k,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStack(2),
	}
}

// wrapError wraps err as an Error of kind k, preserving err for Unwrap.
func wrapError(err error, k Kind) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e.Kind = k
		return e
	}
	return &Error{
		Kind:    k,
		Message: err.Error(),
		Err:     err,
		Stack:   getStack(2),
	}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}

func getStack(skip int) string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pc)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pc[:n])
	buf := make([]byte, 0, 512)
	for {
		frame, more := frames.Next()
		buf = append(buf, fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)...)
		if !more {
			break
		}
	}
	return string(buf)
}
