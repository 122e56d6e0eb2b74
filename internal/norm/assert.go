package norm

import "fmt"

// AssertionError is the panic value of a violated precondition. Callers are
// expected to hand over well-formed tensors; these checks are the last line
// of defense, not input validation.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string {
	return "norm: assertion failed: " + e.Msg
}

// Assert panics with an *AssertionError when cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(&AssertionError{Msg: fmt.Sprintf(format, args...)})
	}
}
