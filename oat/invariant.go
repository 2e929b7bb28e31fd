package oat

import "fmt"

// InvariantError reports a broken internal contract: malformed compiler
// output or layout and write passes that disagree. It is raised with panic,
// never returned, since every offset after the failure point is invalid.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "oat: invariant violated: " + e.Msg
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// check panics when cond is false. It always runs.
func check(cond bool, format string, args ...any) {
	if !cond {
		panic(invariantf(format, args...))
	}
}
