// Package errors defines the error taxonomy surfaced by adhesive to the host
// engine. Every failure carries the phase it happened in and a kind that
// callers match with the standard errors.Is against the exported sentinels.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in the function lifecycle the error occurred
type Phase string

const (
	PhaseBoot     Phase = "boot"     // runtime start
	PhaseRegister Phase = "register" // CREATE FUNCTION handling
	PhaseInvoke   Phase = "invoke"   // batch evaluation
)

// Kind categorizes the error
type Kind string

const (
	KindRuntimeStart      Kind = "runtime_start"
	KindClassNotFound     Kind = "class_not_found"
	KindMethodNotFound    Kind = "method_not_found"
	KindInstantiation     Kind = "instantiation"
	KindSourceParse       Kind = "source_parse"
	KindCompilation       Kind = "compilation"
	KindUnsupportedType   Kind = "unsupported_type"
	KindInvalidDefinition Kind = "invalid_definition"
	KindBufferImport      Kind = "buffer_import"
	KindManagedException  Kind = "managed_exception"
	KindInvalidArgument   Kind = "invalid_argument"
)

// Sentinels matched by kind regardless of phase.
var (
	ErrRuntimeStart      = &Error{Kind: KindRuntimeStart}
	ErrClassNotFound     = &Error{Kind: KindClassNotFound}
	ErrMethodNotFound    = &Error{Kind: KindMethodNotFound}
	ErrInstantiation     = &Error{Kind: KindInstantiation}
	ErrSourceParse       = &Error{Kind: KindSourceParse}
	ErrCompilation       = &Error{Kind: KindCompilation}
	ErrUnsupportedType   = &Error{Kind: KindUnsupportedType}
	ErrInvalidDefinition = &Error{Kind: KindInvalidDefinition}
	ErrBufferImport      = &Error{Kind: KindBufferImport}
	ErrManagedException  = &Error{Kind: KindManagedException}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
)

// Error is the structured error type returned across the package boundary
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Function string // SQL function name, when known
	Class    string // managed class or generated name, when known
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Function != "" {
		b.WriteString(" in function ")
		b.WriteString(e.Function)
	}
	if e.Class != "" {
		b.WriteString(" (class ")
		b.WriteString(e.Class)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Function sets the SQL function name
func (b *Builder) Function(name string) *Builder {
	b.err.Function = name
	return b
}

// Class sets the managed class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind checks if an error is an adhesive error of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// WithFunction returns err annotated with the SQL function name when it is an
// *Error that does not yet carry one. Other errors are returned unchanged.
func WithFunction(err error, name string) error {
	var e *Error
	if !errors.As(err, &e) || e.Function != "" {
		return err
	}
	cp := *e
	cp.Function = name
	return &cp
}
