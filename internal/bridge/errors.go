package bridge

import "fmt"

// manifestNotFoundError reports an unknown plugin manifest id.
type manifestNotFoundError struct{ id string }

func (e manifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found: %s", e.id)
}

// ErrManifestNotFound constructs a manifest lookup failure.
func ErrManifestNotFound(id string) error { return manifestNotFoundError{id: id} }

// IsManifestNotFound reports whether err is a manifest lookup failure.
func IsManifestNotFound(err error) bool {
	_, ok := err.(manifestNotFoundError)
	return ok
}

// instanceNotFoundError reports an unknown plugin instance id.
type instanceNotFoundError struct{ id string }

func (e instanceNotFoundError) Error() string {
	return fmt.Sprintf("instance not found: %s", e.id)
}

// ErrInstanceNotFound constructs an instance lookup failure.
func ErrInstanceNotFound(id string) error { return instanceNotFoundError{id: id} }

// IsInstanceNotFound reports whether err is an instance lookup failure.
func IsInstanceNotFound(err error) bool {
	_, ok := err.(instanceNotFoundError)
	return ok
}

// pluginError carries an error message raised inside the plugin runtime.
// The runtime itself is healthy; these never count against the restart
// budget.
type pluginError struct{ msg string }

func (e pluginError) Error() string { return "plugin error: " + e.msg }

// ErrPlugin wraps an error reported by the runtime on a healthy channel.
func ErrPlugin(msg string) error { return pluginError{msg: msg} }

// IsPlugin reports whether err was raised by plugin code rather than the
// bridge or the transport.
func IsPlugin(err error) bool {
	_, ok := err.(pluginError)
	return ok
}
