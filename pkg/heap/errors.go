package heap

import "fmt"

// GuestError is an error raised by heap operations that must surface to
// guest code as a JS exception of the named constructor. The realm turns it
// into an Error object on the throw path.
type GuestError struct {
	Name    string // "TypeError", "RangeError", "ReferenceError", "SyntaxError"
	Message string
}

func (e *GuestError) Error() string {
	return e.Name + ": " + e.Message
}

func TypeErrorf(format string, args ...interface{}) error {
	return &GuestError{Name: "TypeError", Message: fmt.Sprintf(format, args...)}
}

func RangeErrorf(format string, args ...interface{}) error {
	return &GuestError{Name: "RangeError", Message: fmt.Sprintf(format, args...)}
}

func ReferenceErrorf(format string, args ...interface{}) error {
	return &GuestError{Name: "ReferenceError", Message: fmt.Sprintf(format, args...)}
}

func SyntaxErrorf(format string, args ...interface{}) error {
	return &GuestError{Name: "SyntaxError", Message: fmt.Sprintf(format, args...)}
}
