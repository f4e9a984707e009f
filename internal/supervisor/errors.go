package supervisor

import "fmt"

// notRunningError is returned by Do while the runtime is down, restarting
// or stopped.
type notRunningError struct{ state State }

func (e notRunningError) Error() string {
	return fmt.Sprintf("runtime not running (state %s)", e.state)
}

// ErrNotRunning constructs a not-running error for the given state.
func ErrNotRunning(state State) error { return notRunningError{state: state} }

// IsNotRunning reports whether err means the runtime cannot take traffic
// right now.
func IsNotRunning(err error) bool {
	_, ok := err.(notRunningError)
	return ok
}

// exhaustedError is the terminal error after the restart budget is spent.
type exhaustedError struct {
	crashes int
	last    error
}

func (e exhaustedError) Error() string {
	return fmt.Sprintf("runtime crashed %d times consecutively, giving up: %v",
		e.crashes, e.last)
}

func (e exhaustedError) Unwrap() error { return e.last }

// ErrExhausted constructs the terminal restart-budget error.
func ErrExhausted(crashes int, last error) error {
	return exhaustedError{crashes: crashes, last: last}
}

// IsExhausted reports whether err marks an exhausted restart budget.
func IsExhausted(err error) bool {
	_, ok := err.(exhaustedError)
	return ok
}
