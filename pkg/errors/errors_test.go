package errors

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestErrorKinds(t *testing.T) {
	cause := stderrors.New("boom")
	tests := []struct {
		err  CinderError
		kind string
		text string
	}{
		{&SyntaxError{Position: Position{Line: 1, Column: 2}, Msg: "Unexpected token"}, "Syntax", "Syntax Error at 1:2: Unexpected token"},
		{(&CompileError{Position: Position{Line: 3, Column: 4}, Msg: "undefined label"}).CausedBy(cause), "Compile", "Compile Error at 3:4: undefined label"},
		{&RuntimeError{Msg: "TypeError: x is not a function"}, "Runtime", "Runtime Error: TypeError: x is not a function"},
		{Fatalf("invalid register %d", 40), "Fatal", "Fatal Error: invalid register 40"},
	}
	for _, tt := range tests {
		if tt.err.Kind() != tt.kind {
			t.Errorf("Kind() = %q, want %q", tt.err.Kind(), tt.kind)
		}
		if tt.err.Error() != tt.text {
			t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.text)
		}
	}
}

func TestCompileErrorUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := (&CompileError{Msg: "x"}).CausedBy(cause)
	if !stderrors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
}

func TestDisplayErrors(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	src := "let a = 1;\nlet b = ;\n"
	DisplayErrors(&buf, src, []CinderError{
		&SyntaxError{Position: Position{Line: 2, Column: 9}, Msg: "Unexpected token ;"},
	})
	out := buf.String()
	if !strings.Contains(out, "Syntax Error at 2:9: Unexpected token ;") {
		t.Errorf("missing header in %q", out)
	}
	if !strings.Contains(out, "  let b = ;\n          ^") {
		t.Errorf("missing source line and marker in %q", out)
	}
}

func TestDisplayErrorsStack(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	DisplayErrors(&buf, "", []CinderError{
		&RuntimeError{Msg: "Error: x", Stack: "Error: x\n    at f (main.js:1:1)"},
	})
	if !strings.Contains(buf.String(), "at f (main.js:1:1)") {
		t.Errorf("stack frame not printed: %q", buf.String())
	}
}
