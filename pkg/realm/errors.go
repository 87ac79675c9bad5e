package realm

import (
	"errors"
	"fmt"
	"strings"

	"cinder/pkg/heap"
)

// Exception is a guest-visible exception travelling through Go code.
type Exception struct {
	Value heap.Value
	// File, Line and Column locate the throw site once the VM has seen it.
	File         string
	Line, Column int
	stack        []string
}

func (e *Exception) Error() string {
	if o := e.Value.AsObject(); o != nil && o.Class() == "Error" {
		return o.Value().Inspect()
	}
	return "Uncaught " + e.Value.Inspect()
}

// Stack returns the frames captured when the exception was created.
func (e *Exception) Stack() []string { return e.stack }

// SetStack records frames captured by the VM at throw time.
func (e *Exception) SetStack(frames []string) {
	if e.stack == nil {
		e.stack = frames
	}
}

// SetPosition records the throw site unless one is already known.
func (e *Exception) SetPosition(file string, line, column int) {
	if e.Line == 0 {
		e.File, e.Line, e.Column = file, line, column
	}
}

// NewException wraps a thrown guest value.
func NewException(v heap.Value) *Exception {
	return &Exception{Value: v}
}

// ErrorNames lists the native error constructors.
var ErrorNames = []string{"Error", "TypeError", "ReferenceError", "SyntaxError", "RangeError", "EvalError", "URIError", "AggregateError"}

// NewErrorObject allocates an error object of the named constructor with
// message and a captured stack property.
func (r *Realm) NewErrorObject(name, message string) *heap.Object {
	proto := r.Intrinsic(name + "Prototype")
	if proto == nil {
		proto = r.Intrinsic(ErrorPrototype)
	}
	if proto == nil {
		proto = r.Intrinsic(ObjectPrototype)
	}
	o := r.Heap.NewObjectOf("Error", proto, nil)
	if message != "" {
		o.DefineHidden("message", heap.NewString(message))
	}
	r.CaptureStack(o, name, message)
	return o
}

// CaptureStack sets the stack property of an error object.
func (r *Realm) CaptureStack(o *heap.Object, name, message string) {
	head := name
	if message != "" {
		head += ": " + message
	}
	var frames []string
	if r.Hooks.StackTrace != nil {
		frames = r.Hooks.StackTrace()
	}
	var b strings.Builder
	b.WriteString(head)
	for _, f := range frames {
		b.WriteString("\n    at ")
		b.WriteString(f)
	}
	o.DefineHidden("stack", heap.NewString(b.String()))
}

func (r *Realm) newException(name, format string, args ...interface{}) *Exception {
	o := r.NewErrorObject(name, fmt.Sprintf(format, args...))
	e := NewException(heap.ObjectValue(o))
	if r.Hooks.StackTrace != nil {
		e.stack = r.Hooks.StackTrace()
	}
	return e
}

func (r *Realm) NewError(format string, args ...interface{}) *Exception {
	return r.newException("Error", format, args...)
}

func (r *Realm) NewTypeError(format string, args ...interface{}) *Exception {
	return r.newException("TypeError", format, args...)
}

func (r *Realm) NewRangeError(format string, args ...interface{}) *Exception {
	return r.newException("RangeError", format, args...)
}

func (r *Realm) NewReferenceError(format string, args ...interface{}) *Exception {
	return r.newException("ReferenceError", format, args...)
}

func (r *Realm) NewSyntaxError(format string, args ...interface{}) *Exception {
	return r.newException("SyntaxError", format, args...)
}

// ToException converts err into a guest exception. Heap errors become
// instances of the named error constructor. It reports false for host
// errors that must not be catchable by guest code.
func (r *Realm) ToException(err error) (*Exception, bool) {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex, true
	}
	var ge *heap.GuestError
	if errors.As(err, &ge) {
		return r.newException(ge.Name, "%s", ge.Message), true
	}
	return nil, false
}

// ErrorParts extracts name and message from an error object for host
// diagnostics without running guest code.
func ErrorParts(v heap.Value) (name, message string) {
	o := v.AsObject()
	if o == nil {
		return "", v.Inspect()
	}
	if n, ok := o.FindData("name"); ok && n.IsString() {
		name = n.AsString()
	}
	if m, ok := o.FindData("message"); ok && m.IsString() {
		message = m.AsString()
	}
	return name, message
}
