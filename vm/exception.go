package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Runtime error taxonomy
// ---------------------------------------------------------------------------

// ErrorTag is the closed set of runtime error categories.
type ErrorTag uint8

const (
	ErrTimeout ErrorTag = iota + 1
	ErrCancelled
	ErrHost
	ErrScript
	ErrStackOverflow
	ErrStackUnderflow
	ErrLimitExceeded
)

func (t ErrorTag) String() string {
	switch t {
	case ErrTimeout:
		return "Timeout"
	case ErrCancelled:
		return "Cancelled"
	case ErrHost:
		return "HostError"
	case ErrScript:
		return "ScriptError"
	case ErrStackOverflow:
		return "StackOverflow"
	case ErrStackUnderflow:
		return "StackUnderflow"
	case ErrLimitExceeded:
		return "LimitExceeded"
	}
	return fmt.Sprintf("ErrorTag(%d)", t)
}

// Site locates an instruction.
type Site struct {
	FuncID int
	PC     int
}

func (s Site) String() string {
	return fmt.Sprintf("fn%d@%d", s.FuncID, s.PC)
}

// ErrorValue is a runtime error raised inside a fiber. It travels on the
// operand stack as an Err value and implements error for Go callers.
type ErrorValue struct {
	Tag     ErrorTag
	Message string
	Detail  string
	Site    Site
	Trace   []Site
	Cause   error
}

// NewError creates an ErrorValue without site information.
func NewError(tag ErrorTag, format string, args ...any) *ErrorValue {
	return &ErrorValue{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

func (e *ErrorValue) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Tag.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Detail)
		sb.WriteString(")")
	}
	if e.Site != (Site{}) {
		sb.WriteString(" at ")
		sb.WriteString(e.Site.String())
	}
	return sb.String()
}

func (e *ErrorValue) Unwrap() error { return e.Cause }

// Is matches another *ErrorValue by tag, so errors.Is(err, &ErrorValue{Tag: ErrTimeout}) works.
func (e *ErrorValue) Is(target error) bool {
	t, ok := target.(*ErrorValue)
	return ok && t.Message == "" && t.Tag == e.Tag
}

// AsErrorValue converts an arbitrary host error into an ErrorValue. Errors
// that already are (or wrap) an ErrorValue are returned unchanged.
func AsErrorValue(err error) *ErrorValue {
	var ev *ErrorValue
	if errors.As(err, &ev) {
		return ev
	}
	return &ErrorValue{Tag: ErrHost, Message: err.Error(), Cause: err}
}

// toError turns a thrown operand into an ErrorValue.
func toError(v Value) *ErrorValue {
	if e := v.Err(); e != nil {
		return e
	}
	if s, ok := v.AsString(); ok {
		return &ErrorValue{Tag: ErrScript, Message: s}
	}
	return &ErrorValue{Tag: ErrScript, Message: v.String()}
}

// ---------------------------------------------------------------------------
// Handler stack
// ---------------------------------------------------------------------------

// Handler is an active TRY region. Throwing unwinds the fiber back to the
// operand-stack height and frame depth captured here.
type Handler struct {
	CatchPC     int
	StackHeight int
	FrameDepth  int
}

// pushHandler installs a TRY region.
func (f *Fiber) pushHandler(h Handler) {
	f.handlers = append(f.handlers, h)
}

// popHandler removes the innermost TRY region (END_TRY).
func (f *Fiber) popHandler() bool {
	if len(f.handlers) == 0 {
		return false
	}
	f.handlers = f.handlers[:len(f.handlers)-1]
	return true
}

// unwind delivers err to the innermost handler. It restores the operand
// stack and frame stack exactly to their state at TRY and moves the pc of
// the restored top frame to the catch address. It returns false when no
// handler is active.
func (f *Fiber) unwind(err *ErrorValue) bool {
	if len(f.handlers) == 0 {
		return false
	}
	h := f.handlers[len(f.handlers)-1]
	f.handlers = f.handlers[:len(f.handlers)-1]

	for i := h.StackHeight; i < len(f.stack); i++ {
		f.stack[i] = Value{}
	}
	f.stack = f.stack[:h.StackHeight]
	f.frames = f.frames[:h.FrameDepth]
	f.frames[len(f.frames)-1].PC = h.CatchPC
	f.lastError = err
	return true
}
