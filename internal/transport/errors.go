package transport

// unavailableError indicates a channel that cannot serve traffic: the shm
// region could not be mapped or the runtime closed its end of the pipe.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return "transport unavailable: " + e.msg }

// ErrUnavailable constructs an unavailable-channel error.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err marks an unusable channel.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}

// staleError indicates the consumer could not obtain a coherent frame:
// either the generation check failed twice in a row or the counter made no
// progress within the configured window.
type staleError struct{ msg string }

func (e staleError) Error() string { return "stale frame: " + e.msg }

// ErrStale constructs a stale-frame error.
func ErrStale(msg string) error { return staleError{msg: msg} }

// IsStale reports whether err marks a stale or torn frame.
func IsStale(err error) bool {
	_, ok := err.(staleError)
	return ok
}
