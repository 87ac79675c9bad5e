package errors

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// CinderError is the interface implemented by all host-side cinder errors:
// everything that is reported before or outside guest execution.
type CinderError interface {
	error
	Pos() Position
	Kind() string // "Syntax", "Compile", "Runtime", "Fatal"
	// Message returns the error message without position info.
	Message() string
	Unwrap() error
}

// --- Concrete Error Types ---

// SyntaxError is reported by the parser or the static validator.
type SyntaxError struct {
	Position
	Msg   string
	Cause error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Syntax Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "Syntax" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return e.Cause }
func (e *SyntaxError) CausedBy(cause error) *SyntaxError {
	e.Cause = cause
	return e
}

// CompileError represents an error during bytecode generation: unsupported
// nodes, unknown labels, misplaced break/continue, pool overflow.
type CompileError struct {
	Position
	Msg   string
	Cause error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("Compile Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *CompileError) Pos() Position   { return e.Position }
func (e *CompileError) Kind() string    { return "Compile" }
func (e *CompileError) Message() string { return e.Msg }
func (e *CompileError) Unwrap() error   { return e.Cause }
func (e *CompileError) CausedBy(cause error) *CompileError {
	e.Cause = cause
	return e
}

// RuntimeError wraps a guest exception that escaped the top frame so that it
// can be displayed next to the source line where it was thrown.
type RuntimeError struct {
	Position
	Msg   string
	Stack string
	Cause error
}

func (e *RuntimeError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("Runtime Error: %s", e.Msg)
	}
	return fmt.Sprintf("Runtime Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *RuntimeError) Pos() Position   { return e.Position }
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }

// FatalError aborts execution: corrupt bytecode, invalid register or constant
// index, heap exhaustion. It is never catchable by guest code.
type FatalError struct {
	Position
	Msg   string
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("Fatal Error: %s", e.Msg)
}
func (e *FatalError) Pos() Position   { return e.Position }
func (e *FatalError) Kind() string    { return "Fatal" }
func (e *FatalError) Message() string { return e.Msg }
func (e *FatalError) Unwrap() error   { return e.Cause }

// Fatalf builds a FatalError without position information.
func Fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{Msg: fmt.Sprintf(format, args...)}
}

// --- Error Reporting ---

var (
	kindColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	dimColor    = color.New(color.Faint).SprintFunc()
)

// DisplayErrors prints errors to w with the offending source line and a
// position marker. Colors follow color.NoColor.
func DisplayErrors(w io.Writer, source string, errs []CinderError) {
	if len(errs) == 0 {
		return
	}

	lines := strings.Split(source, "\n")

	for _, err := range errs {
		pos := err.Pos()
		kind := err.Kind()
		msg := err.Message()

		lineIdx := pos.Line - 1
		if pos.IsZero() || lineIdx < 0 || lineIdx >= len(lines) {
			fmt.Fprintf(w, "%s %s\n", kindColor(kind+" Error:"), msg)
			printStack(w, err)
			continue
		}

		trimmedLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")

		fmt.Fprintf(w, "%s %s\n", kindColor(fmt.Sprintf("%s Error at %d:%d:", kind, pos.Line, pos.Column)), msg)
		fmt.Fprintf(w, "  %s\n", trimmedLine)

		col := pos.Column - 1
		if col < 0 {
			col = 0
		}
		marker := strings.Repeat(" ", col) + "^"
		if pos.EndPos > pos.StartPos+1 && pos.EndPos-pos.StartPos < len(trimmedLine)-col {
			marker += strings.Repeat("~", pos.EndPos-pos.StartPos-1)
		}
		fmt.Fprintf(w, "  %s\n", markerColor(marker))
		printStack(w, err)
		fmt.Fprintln(w)
	}
}

func printStack(w io.Writer, err CinderError) {
	rt, ok := err.(*RuntimeError)
	if !ok || rt.Stack == "" {
		return
	}
	for _, line := range strings.Split(rt.Stack, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "at ") {
			fmt.Fprintf(w, "  %s\n", dimColor(strings.TrimSpace(line)))
		}
	}
}
